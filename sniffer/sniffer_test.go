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

package sniffer

import (
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serializeTCP(t *testing.T, v6 bool, payload string) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	tcp := &layers.TCP{
		SrcPort: 51000,
		DstPort: 8080,
		Seq:     42,
		ACK:     true,
		PSH:     true,
		Window:  1024,
	}

	var ip gopacket.SerializableLayer
	if v6 {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip6 := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolTCP,
			SrcIP:      net.ParseIP("fd00::1"),
			DstIP:      net.ParseIP("fd00::2"),
		}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip6))
		ip = ip6
	} else {
		ip4 := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    net.ParseIP("10.0.0.1"),
			DstIP:    net.ParseIP("10.0.0.2"),
		}
		require.NoError(t, tcp.SetNetworkLayerForChecksum(ip4))
		ip = ip4
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func TestParseTCPSegment(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	seg := ParseTCPSegment(ts, layers.LinkTypeEthernet, serializeTCP(t, false, "GET / HTTP/1.0\r\n\r\n"), false)
	require.NotNil(t, seg)
	assert.Equal(t, "10.0.0.1:51000 > 10.0.0.2:8080", seg.Tuple.String())
	assert.Equal(t, uint32(42), seg.Seq)
	assert.True(t, seg.ACK)
	assert.False(t, seg.SYN)
	assert.Equal(t, "GET / HTTP/1.0\r\n\r\n", string(seg.Payload))
	assert.Equal(t, ts, seg.Time)

	seg = ParseTCPSegment(ts, layers.LinkTypeEthernet, serializeTCP(t, true, "x"), false)
	require.NotNil(t, seg)
	assert.Equal(t, "fd00::1", seg.Tuple.SrcIP.String())

	assert.Nil(t, ParseTCPSegment(ts, layers.LinkTypeEthernet, serializeTCP(t, true, "x"), true))
	assert.Nil(t, ParseTCPSegment(ts, layers.LinkTypeEthernet, []byte{0x01, 0x02}, false))
	assert.Nil(t, ParseTCPSegment(ts, layers.LinkTypeFDDI, serializeTCP(t, false, "x"), false))
}

func TestParseTCPSegmentRaw(t *testing.T) {
	b := serializeTCP(t, false, "raw")
	// 去掉 14 字节的以太网头部
	seg := ParseTCPSegment(time.Now(), layers.LinkTypeRaw, b[14:], false)
	require.NotNil(t, seg)
	assert.Equal(t, "raw", string(seg.Payload))
}

func TestNewWithConfig(t *testing.T) {
	_, err := NewWithConfig(&Config{Engine: "afpacket"})
	assert.Error(t, err)
}
