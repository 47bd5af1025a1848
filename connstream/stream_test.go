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

package connstream

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/htp/common"
	"github.com/packetd/htp/common/socket"
	"github.com/packetd/htp/internal/splitio"
	"github.com/packetd/htp/internal/zerocopy"
)

func TestWriteChunk(t *testing.T) {
	tests := []struct {
		name        string
		input       [][]byte
		endWithCRLF []bool
		total       int
	}{
		{
			name: "CRLF at end",
			input: [][]byte{
				bytes.Repeat([]byte("a"), common.ReadWriteBlockSize-68),
				bytes.Repeat([]byte("a"), 3),
				splitio.CharCRLF,
			},
			endWithCRLF: []bool{true},
			total:       common.ReadWriteBlockSize - 63,
		},
		{
			name: "CRLF at end",
			input: [][]byte{
				bytes.Repeat([]byte("z"), common.ReadWriteBlockSize-2),
				splitio.CharCRLF,
			},
			endWithCRLF: []bool{true},
			total:       common.ReadWriteBlockSize,
		},
		{
			name: "CRLF split across chunks",
			input: [][]byte{
				bytes.Repeat([]byte("a"), common.ReadWriteBlockSize-70),
				splitio.CharCRLF,
				bytes.Repeat([]byte("b"), 50),
			},
			endWithCRLF: []bool{false, false},
			total:       common.ReadWriteBlockSize - 18,
		},
		{
			name: "CR only in middle",
			input: [][]byte{
				bytes.Repeat([]byte("a"), common.ReadWriteBlockSize-100),
				{'C', '\r', 'M', 'D'},
				bytes.Repeat([]byte("b"), 100),
			},
			endWithCRLF: []bool{false, false},
			total:       common.ReadWriteBlockSize + 4,
		},
		{
			name: "LF only at boundary",
			input: [][]byte{
				bytes.Repeat([]byte("x"), common.ReadWriteBlockSize-1),
				splitio.CharLF,
				[]byte("trailing-data"),
			},
			endWithCRLF: []bool{false, false},
			total:       common.ReadWriteBlockSize + 13,
		},
		{
			name: "Large payload",
			input: [][]byte{
				bytes.Repeat([]byte("c"), 3*common.ReadWriteBlockSize),
			},
			endWithCRLF: []bool{false, false, false, false},
			total:       3 * common.ReadWriteBlockSize,
		},
		{
			name: "Multiple CRLF in a chunk",
			input: [][]byte{
				[]byte("data"),
				splitio.CharCRLF,
				bytes.Repeat([]byte("a"), 500),
				splitio.CharCRLF,
				bytes.Repeat([]byte("b"), 500),
			},
			endWithCRLF: []bool{false},
			total:       1008,
		},
		{
			name: "CRLF at beginning",
			input: [][]byte{
				splitio.CharCRLF,
				[]byte("payload"),
			},
			endWithCRLF: []bool{false},
			total:       9,
		},
		{
			name: "Mixed CR/LF/CRLF",
			input: [][]byte{
				[]byte("CR:\r LF:\n CRLF:\r\n"),
				[]byte("END\r"),
				[]byte("\n"),
			},
			endWithCRLF: []bool{true},
			total:       22,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cw := newChunkWriter()
			var total int
			var endWithCRLF []bool
			f := func(r zerocopy.Reader) {
				b, _ := r.Read(common.ReadWriteBlockSize)
				total += len(b)
				endWithCRLF = append(endWithCRLF, bytes.HasSuffix(b, splitio.CharCRLF))
			}

			var b bytes.Buffer
			for _, payload := range tt.input {
				b.Write(payload)
			}
			cw.Write(b.Bytes(), f)
			assert.Equal(t, tt.total, total)
			assert.Equal(t, tt.endWithCRLF, endWithCRLF)
		})
	}
}

type recorder struct {
	data   bytes.Buffer
	events []string
	gaps   []int
	closed bool
}

func (r *recorder) OnData(_ time.Time, zr zerocopy.Reader) {
	for {
		b, err := zr.Read(512)
		if err != nil {
			return
		}
		r.data.Write(b)
		r.events = append(r.events, "data")
	}
}

func (r *recorder) OnGap(_ time.Time, n int) {
	r.gaps = append(r.gaps, n)
	r.events = append(r.events, "gap")
}

func (r *recorder) OnClose(_ time.Time) {
	r.closed = true
}

func testTuple() socket.Tuple {
	return socket.Tuple{
		SrcIP:   socket.ToIPV4(net.ParseIP("10.0.0.1")),
		DstIP:   socket.ToIPV4(net.ParseIP("10.0.0.2")),
		SrcPort: 51000,
		DstPort: 80,
	}
}

func segment(st socket.Tuple, seq uint32, payload string) *socket.TCPSegment {
	return &socket.TCPSegment{
		Tuple:   st,
		Time:    time.Unix(1700000000, 0),
		ACK:     true,
		Seq:     seq,
		Payload: []byte(payload),
	}
}

func TestTCPStreamInOrder(t *testing.T) {
	st := testTuple()
	s := NewTCPStream(st)
	rec := &recorder{}

	syn := &socket.TCPSegment{Tuple: st, SYN: true, Seq: 99}
	require.NoError(t, s.Write(syn, rec))
	require.NoError(t, s.Write(segment(st, 100, "GET / "), rec))
	require.NoError(t, s.Write(segment(st, 106, "HTTP/1.1\r\n"), rec))

	assert.Equal(t, "GET / HTTP/1.1\r\n", rec.data.String())
	assert.Empty(t, rec.gaps)

	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.Packets)
	assert.Equal(t, uint64(16), stats.Bytes)
	assert.Equal(t, Stats{}, s.Stats())
}

func TestTCPStreamRetransmit(t *testing.T) {
	st := testTuple()
	s := NewTCPStream(st)
	rec := &recorder{}

	require.NoError(t, s.Write(segment(st, 1000, "abcdef"), rec))
	require.NoError(t, s.Write(segment(st, 1000, "abcdef"), rec))
	require.NoError(t, s.Write(segment(st, 1003, "defghi"), rec))

	assert.Equal(t, "abcdefghi", rec.data.String())
}

func TestTCPStreamGap(t *testing.T) {
	st := testTuple()
	s := NewTCPStream(st)
	rec := &recorder{}

	require.NoError(t, s.Write(segment(st, 1000, "abc"), rec))
	require.NoError(t, s.Write(segment(st, 1010, "xyz"), rec))
	// 迟到的数据包作为重传丢弃
	require.NoError(t, s.Write(segment(st, 1003, "defghij"), rec))

	assert.Equal(t, []int{7}, rec.gaps)
	assert.Equal(t, []string{"data", "gap", "data"}, rec.events)
	assert.Equal(t, "abcxyz", rec.data.String())
	assert.Equal(t, uint64(1), s.Stats().Gaps)
}

func TestTCPStreamSeqWrap(t *testing.T) {
	st := testTuple()
	s := NewTCPStream(st)
	rec := &recorder{}

	require.NoError(t, s.Write(segment(st, 0xfffffffe, "ab"), rec))
	require.NoError(t, s.Write(segment(st, 0, "cd"), rec))

	assert.Equal(t, "abcd", rec.data.String())
	assert.Empty(t, rec.gaps)
}

func TestTCPStreamClose(t *testing.T) {
	st := testTuple()
	s := NewTCPStream(st)
	rec := &recorder{}

	fin := segment(st, 1, "bye")
	fin.FIN = true
	require.NoError(t, s.Write(fin, rec))
	assert.True(t, rec.closed)
	assert.True(t, s.IsClosed())
	assert.Equal(t, "bye", rec.data.String())

	assert.ErrorIs(t, s.Write(segment(st, 4, "more"), rec), ErrClosed)
}

func TestConnRouting(t *testing.T) {
	client := testTuple()
	req, res := &recorder{}, &recorder{}
	conn := NewConn(client, req, res)

	require.NoError(t, conn.Write(segment(client, 1, "request")))
	require.NoError(t, conn.Write(segment(client.Mirror(), 1, "response")))
	assert.Equal(t, "request", req.data.String())
	assert.Equal(t, "response", res.data.String())

	other := client
	other.SrcPort = 1
	assert.ErrorIs(t, conn.Write(segment(other, 1, "x")), ErrSocketNotMatch)

	rst := segment(client, 8, "")
	rst.RST = true
	require.NoError(t, conn.Write(rst))
	assert.False(t, conn.IsClosed())

	fin := segment(client.Mirror(), 9, "")
	fin.FIN = true
	require.NoError(t, conn.Write(fin))
	assert.True(t, conn.IsClosed())

	stats := conn.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, client, stats[0].Tuple)
	assert.Equal(t, uint64(7), stats[0].Stats.Bytes)
}
