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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/htp/common/socket"
	"github.com/packetd/htp/protocol/htp"
)

type txRecord struct {
	method   string
	status   int
	complete bool
}

type txCollector struct {
	records []txRecord
}

func (c *txCollector) onTx(_ *htp.Connection, tx *htp.Transaction, complete bool) {
	c.records = append(c.records, txRecord{
		method:   string(tx.RequestMethod),
		status:   tx.ResponseStatusNumber,
		complete: complete,
	})
}

func testTuple() socket.Tuple {
	return socket.Tuple{
		SrcIP:   socket.ToIPV4(net.ParseIP("10.0.0.1")),
		SrcPort: 40000,
		DstIP:   socket.ToIPV4(net.ParseIP("10.0.0.2")),
		DstPort: 80,
	}
}

func newTestTracker(t *testing.T, cfg *htp.Config) (*Tracker, *txCollector) {
	t.Helper()
	if cfg == nil {
		cfg = htp.NewConfig()
	}
	WatchTransactions(cfg)

	c := &txCollector{}
	return NewTracker(cfg, testTuple(), time.Unix(1700000000, 0), c.onTx), c
}

func TestTrackerPipeline(t *testing.T) {
	tr, c := newTestTracker(t, nil)
	ts := time.Unix(1700000001, 0)

	tr.RequestData(ts, []byte("GET /1 HTTP/1.1\r\nHost: a\r\n\r\nGET /2 HTTP/1.1\r\nHost: a\r\n\r\n"))
	tr.ResponseData(ts, []byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	tr.ResponseData(ts, []byte("HTTP/1.1 304 Not Modified\r\n\r\n"))
	tr.Close(ts)

	require.Len(t, c.records, 2)
	assert.Equal(t, txRecord{method: "GET", status: 200, complete: true}, c.records[0])
	assert.Equal(t, txRecord{method: "GET", status: 304, complete: true}, c.records[1])

	conn := tr.Parser().Conn()
	assert.Equal(t, "10.0.0.1", conn.ClientAddr.String())
	assert.Equal(t, 80, conn.ServerPort)
}

func TestTrackerConnect(t *testing.T) {
	tr, c := newTestTracker(t, nil)
	ts := time.Unix(1700000001, 0)

	tr.RequestData(ts, []byte("CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n\x16\x03\x01\x00\x05hello"))
	assert.NotEmpty(t, tr.reqPending)

	tr.RequestData(ts, []byte("more"))
	assert.Len(t, tr.reqPending, 14)

	tr.ResponseData(ts, []byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
	assert.Empty(t, tr.reqPending)

	require.Len(t, c.records, 1)
	assert.Equal(t, "CONNECT", c.records[0].method)
	assert.Equal(t, 200, c.records[0].status)

	tr.ResponseData(ts, []byte("\x16\x03\x03 server tunnel data"))
	tr.Close(ts)
	assert.Len(t, c.records, 1)
}

func TestTrackerGapDropsPending(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	ts := time.Unix(1700000001, 0)

	tr.RequestData(ts, []byte("CONNECT example.com:443 HTTP/1.1\r\n\r\nabc"))
	require.Len(t, tr.reqPending, 3)

	tr.RequestGap(ts, 10)
	assert.Empty(t, tr.reqPending)
}

func TestTrackerCloseIncomplete(t *testing.T) {
	tr, c := newTestTracker(t, nil)
	ts := time.Unix(1700000001, 0)

	tr.RequestData(ts, []byte("POST /upload HTTP/1.1\r\nHost: a\r\nContent-Length: 100\r\n\r\npartial"))
	tr.Close(ts)
	tr.Close(ts)

	require.Len(t, c.records, 1)
	assert.Equal(t, "POST", c.records[0].method)
	assert.False(t, c.records[0].complete)

	tr.RequestData(ts, []byte("ignored"))
	assert.Len(t, c.records, 1)
}

func TestTrackerAutoDestroy(t *testing.T) {
	cfg := htp.NewConfig()
	cfg.TxAutoDestroy = true
	tr, c := newTestTracker(t, cfg)
	ts := time.Unix(1700000001, 0)

	tr.RequestData(ts, []byte("GET / HTTP/1.0\r\n\r\n"))
	tr.ResponseData(ts, []byte("HTTP/1.0 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	tr.Close(ts)

	require.Len(t, c.records, 1)
	assert.True(t, c.records[0].complete)
	assert.Empty(t, tr.Parser().Conn().Transactions())
}
