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

package exporter

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/htp/protocol/htp"
)

func parseOne(t *testing.T, req, res string) (*htp.Connection, *htp.Transaction) {
	ts := time.Unix(1700000000, 0)
	p := htp.NewConnParser(htp.NewConfig())
	p.Open(net.ParseIP("10.0.0.1"), 51000, net.ParseIP("10.0.0.2"), 80, ts)
	p.RequestData(ts, []byte(req))
	p.ResponseData(ts, []byte(res))
	p.Close(ts)

	conn := p.Conn()
	require.Equal(t, 1, conn.TxCount())
	return conn, conn.Tx(0)
}

func TestNewRecord(t *testing.T) {
	conn, tx := parseOne(t,
		"POST /login?next=%2Fhome HTTP/1.1\r\n"+
			"Host: example.com:8080\r\n"+
			"Authorization: Basic dXNlcjpwYXNz\r\n"+
			"Content-Type: application/x-www-form-urlencoded\r\n"+
			"Content-Length: 7\r\n\r\n"+
			"a=1&b=2",
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok",
	)

	rec := NewRecord(conn, tx)
	assert.Equal(t, conn.ID, rec.ConnID)
	assert.Equal(t, "10.0.0.1:51000", rec.Client)
	assert.Equal(t, "10.0.0.2:80", rec.Server)
	assert.Equal(t, 0, rec.TxIndex)

	assert.Equal(t, "POST", rec.Request.Method)
	assert.Equal(t, "/login?next=%2Fhome", rec.Request.URI)
	assert.Equal(t, "example.com", rec.Request.Hostname)
	assert.Equal(t, 8080, rec.Request.Port)
	assert.Equal(t, "basic", rec.Request.AuthType)
	assert.Equal(t, "user", rec.Request.AuthUsername)
	assert.Equal(t, int64(7), rec.Request.EntityLen)
	assert.Equal(t, "identity", rec.Request.TransferCoding)
	assert.Equal(t, "COMPLETE", rec.Request.Progress)
	assert.Len(t, rec.Request.Headers, 4)
	assert.Contains(t, rec.Request.Params, Param{Name: "next", Value: "/home", Source: "query"})
	assert.Contains(t, rec.Request.Params, Param{Name: "b", Value: "2", Source: "body"})

	assert.Equal(t, 200, rec.Response.Status)
	assert.Equal(t, "OK", rec.Response.Message)
	assert.Equal(t, int64(2), rec.Response.EntityLen)
	assert.Equal(t, "COMPLETE", rec.Response.Progress)
}

func TestNewRecordMessages(t *testing.T) {
	conn, tx := parseOne(t,
		"GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n",
		"HTTP/1.1 204 No Content\r\n\r\n",
	)

	rec := NewRecord(conn, tx)
	assert.Contains(t, rec.Flags, "HOST_AMBIGUOUS")
	assert.NotEmpty(t, rec.Messages)
	for _, m := range rec.Messages {
		assert.NotEmpty(t, m.Code)
	}
}

type memSinker struct {
	records []*Record
	closed  bool
}

func (s *memSinker) Name() string { return "memory" }

func (s *memSinker) Sink(rec *Record) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *memSinker) Close() error {
	s.closed = true
	return nil
}

func TestExporter(t *testing.T) {
	exp, err := NewWithConfig(Config{})
	require.NoError(t, err)
	assert.False(t, exp.Enabled())
	assert.NoError(t, exp.Export(&Record{}))

	mem := &memSinker{}
	exp.sinkers = append(exp.sinkers, mem)
	assert.True(t, exp.Enabled())
	require.NoError(t, exp.Export(&Record{ConnID: "c1"}))
	require.Len(t, mem.records, 1)
	assert.Equal(t, "c1", mem.records[0].ConnID)

	assert.NoError(t, exp.Close())
	assert.True(t, mem.closed)
}

func TestWebhookConfigValidate(t *testing.T) {
	wc := WebhookConfig{Endpoint: "http://127.0.0.1:9000/ingest"}
	require.NoError(t, wc.Validate())
	assert.Equal(t, "none", wc.Compression)
	assert.Equal(t, 100, wc.Batch)
	assert.Equal(t, defaultTimeout, wc.Timeout)

	wc = WebhookConfig{Endpoint: "ftp://127.0.0.1"}
	assert.Error(t, wc.Validate())

	wc = WebhookConfig{Endpoint: "http://127.0.0.1", Compression: "zstd"}
	assert.Error(t, wc.Validate())
}
