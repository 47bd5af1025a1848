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

package cmd

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/htp/exporter"
	"github.com/packetd/htp/internal/json"
	"github.com/packetd/htp/internal/splitio"
)

const (
	testRequests = "GET /a?x=1 HTTP/1.1\r\nHost: example.com\r\n\r\n" +
		"POST /b HTTP/1.1\r\nHost: example.com\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: 7\r\n\r\nk=v&a=b"
	testResponses = "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok" +
		"HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"
)

func decodeRecords(t *testing.T, b []byte) []exporter.Record {
	var records []exporter.Record
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		var rec exporter.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	return records
}

func TestParseStreams(t *testing.T) {
	modes := []splitio.Mode{splitio.ModeNone, splitio.ModeLines, splitio.ModeSize(1), splitio.ModeSize(7)}
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			c := parseCmdConfig{ClientPort: 40000, ServerPort: 8080}
			cfg, err := c.htpConfig()
			require.NoError(t, err)

			var buf bytes.Buffer
			err = parseStreams(cfg, c.tuple(), []byte(testRequests), []byte(testResponses), mode, &buf, false)
			require.NoError(t, err)

			records := decodeRecords(t, buf.Bytes())
			require.Len(t, records, 2)

			assert.Equal(t, "GET", records[0].Request.Method)
			assert.Equal(t, "/a?x=1", records[0].Request.URI)
			assert.Equal(t, 200, records[0].Response.Status)
			assert.True(t, records[0].Complete)
			assert.Equal(t, "127.0.0.1:8080", records[0].Server)

			assert.Equal(t, "POST", records[1].Request.Method)
			assert.Equal(t, int64(7), records[1].Request.EntityLen)
			assert.Equal(t, 404, records[1].Response.Status)
		})
	}
}

func TestParseStreamsIncomplete(t *testing.T) {
	c := parseCmdConfig{ClientPort: 40000, ServerPort: 80}
	cfg, err := c.htpConfig()
	require.NoError(t, err)

	var buf bytes.Buffer
	err = parseStreams(cfg, c.tuple(), []byte("GET / HTTP/1.1\r\nHost: a\r\n\r\n"), nil, splitio.ModeNone, &buf, false)
	require.NoError(t, err)

	records := decodeRecords(t, buf.Bytes())
	require.Len(t, records, 1)
	assert.False(t, records[0].Complete)
	assert.Equal(t, "GET", records[0].Request.Method)
}

func TestParsePersonality(t *testing.T) {
	c := parseCmdConfig{Personality: "nginx"}
	_, err := c.htpConfig()
	assert.Error(t, err)
}

func TestReplayConfigYaml(t *testing.T) {
	c := replayCmdConfig{
		LogLevel:           "debug",
		Hosts:              []string{"10.0.0.1"},
		Ports:              []uint{80, 8080},
		Personality:        "apache_2",
		Output:             "out.log",
		Webhook:            "http://127.0.0.1:9000/ingest",
		WebhookCompression: "gzip",
	}
	conf, err := c.Load()
	require.NoError(t, err)

	var snif struct {
		Engine string   `config:"engine"`
		Hosts  []string `config:"hosts"`
		Ports  []uint16 `config:"ports"`
	}
	require.NoError(t, conf.UnpackChild("sniffer", &snif))
	assert.Equal(t, "pcapfile", snif.Engine)
	assert.Equal(t, []string{"10.0.0.1"}, snif.Hosts)
	assert.Equal(t, []uint16{80, 8080}, snif.Ports)

	opts, err := conf.Options("htp")
	require.NoError(t, err)
	s, err := opts.GetString("personality")
	assert.NoError(t, err)
	assert.Equal(t, "apache_2", s)

	var exp exporter.Config
	require.NoError(t, conf.UnpackChild("exporter", &exp))
	assert.True(t, exp.Transactions.Enabled)
	assert.Equal(t, "out.log", exp.Transactions.Filename)
	assert.True(t, exp.Webhook.Enabled)
	assert.Equal(t, "gzip", exp.Webhook.Compression)
}

func TestReplayConfigYamlMinimal(t *testing.T) {
	c := replayCmdConfig{LogLevel: "info", Output: "out.log"}
	conf, err := c.Load()
	require.NoError(t, err)

	opts, err := conf.Options("htp")
	require.NoError(t, err)
	assert.False(t, opts.Has("personality"))
	assert.False(t, conf.Has("exporter.webhook"))
}
