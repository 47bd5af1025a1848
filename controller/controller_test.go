// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package controller

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/htp/common"
	"github.com/packetd/htp/confengine"
	"github.com/packetd/htp/exporter"
	"github.com/packetd/htp/internal/json"
)

type pcapPacket struct {
	fromClient bool
	syn, ack   bool
	fin        bool
	seq        uint32
	payload    string
}

func writeExchangePcap(t *testing.T, packets []pcapPacket) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exchange.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))

	client, server := net.ParseIP("10.1.1.1"), net.ParseIP("10.1.1.2")
	for i, p := range packets {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    client,
			DstIP:    server,
		}
		tcp := &layers.TCP{
			SrcPort: 45000,
			DstPort: 80,
			Seq:     p.seq,
			SYN:     p.syn,
			ACK:     p.ack,
			FIN:     p.fin,
			Window:  512,
		}
		if !p.fromClient {
			ip.SrcIP, ip.DstIP = server, client
			tcp.SrcPort, tcp.DstPort = 80, 45000
		}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
			EthernetType: layers.EthernetTypeIPv4,
		}
		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(p.payload)))

		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)*int64(time.Millisecond)),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		require.NoError(t, w.WritePacket(ci, buf.Bytes()))
	}
	return path
}

func exchangePackets() []pcapPacket {
	req := "POST /login?next=%2Fhome HTTP/1.1\r\nHost: example.com\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: 13\r\n\r\nuser=a&pass=b"
	res := "HTTP/1.1 302 Found\r\nLocation: /home\r\nContent-Length: 0\r\n\r\n"
	return []pcapPacket{
		{fromClient: true, syn: true, seq: 1000},
		{syn: true, ack: true, seq: 5000},
		{fromClient: true, ack: true, seq: 1001, payload: req[:40]},
		{fromClient: true, ack: true, seq: 1041, payload: req[40:]},
		{ack: true, seq: 5001, payload: res},
		{fromClient: true, ack: true, fin: true, seq: 1001 + uint32(len(req))},
		{ack: true, fin: true, seq: 5001 + uint32(len(res))},
	}
}

func newTestController(t *testing.T, output string, extra string) *Controller {
	t.Helper()
	content := fmt.Sprintf(`
logger:
  stdout: true
  level: error
sniffer:
  ports: [80]
htp:
  personality: apache_2
exporter:
  transactions:
    enabled: true
    filename: %s
%s
`, output, extra)

	conf, err := confengine.LoadContent([]byte(content))
	require.NoError(t, err)

	ctr, err := New(conf, common.BuildInfo{Version: "test"})
	require.NoError(t, err)
	return ctr
}

func readRecords(t *testing.T, path string) []exporter.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []exporter.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec exporter.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	return records
}

func TestControllerReplay(t *testing.T) {
	output := filepath.Join(t.TempDir(), "transactions.log")
	ctr := newTestController(t, output, "")

	pcap := writeExchangePcap(t, exchangePackets())
	require.NoError(t, ctr.Replay(context.Background(), pcap))
	require.NoError(t, ctr.Stop())

	records := readRecords(t, output)
	require.Len(t, records, 1)

	rec := records[0]
	assert.True(t, rec.Complete)
	assert.Equal(t, "10.1.1.1:45000", rec.Client)
	assert.Equal(t, "10.1.1.2:80", rec.Server)
	assert.Equal(t, "POST", rec.Request.Method)
	assert.Equal(t, "example.com", rec.Request.Hostname)
	assert.Equal(t, 302, rec.Response.Status)

	params := map[string]string{}
	for _, p := range rec.Request.Params {
		params[p.Name] = p.Value
	}
	assert.Equal(t, "/home", params["next"])
	assert.Equal(t, "a", params["user"])
	assert.Equal(t, "b", params["pass"])
}

func TestControllerReplayErrors(t *testing.T) {
	output := filepath.Join(t.TempDir(), "transactions.log")
	ctr := newTestController(t, output, "")
	defer ctr.Stop()

	good := writeExchangePcap(t, exchangePackets())
	err := ctr.Replay(context.Background(), good, filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "missing.pcap"))
}

func TestControllerReload(t *testing.T) {
	output := filepath.Join(t.TempDir(), "transactions.log")
	ctr := newTestController(t, output, "")
	defer ctr.Stop()

	conf, err := confengine.LoadContent([]byte("sniffer:\n  ports: [8080]\nhtp:\n  personality: iis_7_5\n"))
	require.NoError(t, err)
	require.NoError(t, ctr.Reload(conf))
	assert.Equal(t, []uint16{8080}, ctr.snifCfg.Ports)

	conf, err = confengine.LoadContent([]byte("sniffer:\n  hosts: [\"bad host\"]\n"))
	require.NoError(t, err)
	assert.Error(t, ctr.Reload(conf))
}

func TestControllerRoutes(t *testing.T) {
	output := filepath.Join(t.TempDir(), "transactions.log")
	ctr := newTestController(t, output, "server:\n  enabled: true\n  address: 127.0.0.1:0\n")
	defer ctr.Stop()
	ctr.setupServer()
	handler := ctr.svr.Handler()

	t.Run("Metrics", func(t *testing.T) {
		rw := httptest.NewRecorder()
		handler.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rw.Code)
		assert.Contains(t, rw.Body.String(), "htp_build_info")
	})

	t.Run("Logger", func(t *testing.T) {
		rw := httptest.NewRecorder()
		handler.ServeHTTP(rw, httptest.NewRequest(http.MethodPost, "/-/logger?level=error", nil))
		assert.Equal(t, http.StatusOK, rw.Code)
		assert.Contains(t, rw.Body.String(), "success")
	})

	t.Run("Watch", func(t *testing.T) {
		rw := httptest.NewRecorder()
		done := make(chan struct{})
		go func() {
			defer close(done)
			handler.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/watch?max_message=1&timeout=2s", nil))
		}()

		require.Eventually(t, func() bool {
			return ctr.txBus.Num() == 1
		}, time.Second, 10*time.Millisecond)
		ctr.txBus.Publish([]byte(`{"tx_index":0}`))
		<-done

		assert.Equal(t, "{\"tx_index\":0}\n", rw.Body.String())
		assert.Equal(t, 0, ctr.txBus.Num())
	})
}
