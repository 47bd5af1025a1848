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
	"time"

	"github.com/packetd/htp/common/socket"
	"github.com/packetd/htp/internal/zerocopy"
)

/*
* TCP Layout
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|          Source Ports          |       Destination Ports        |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                        Sequence Number                        |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|                    Acknowledgment Number                      |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
|  Data |           |U|A|P|R|S|F|                               |
| Offset| Reserved  |R|C|S|S|Y|I|            Window             |
|       |           |G|K|H|T|N|N|                               |
+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/

// maxGap 超过该值的序列号跳跃视为新的数据流 不再作为缺失数据上报
const maxGap = 1 << 30

type tcpStream struct {
	st       socket.Tuple // 使用 st 作为 Stream 的唯一标识
	nextSeq  uint32       // 期望收到的下一个序列号
	synced   bool         // nextSeq 是否已经确定
	cw       *chunkWriter
	closed   bool
	activeAt time.Time
	stats    Stats
}

func NewTCPStream(st socket.Tuple) Stream {
	return &tcpStream{
		st: st,
		cw: newChunkWriter(),
	}
}

func (s *tcpStream) SocketTuple() socket.Tuple {
	return s.st
}

func (s *tcpStream) ActiveAt() time.Time {
	return s.activeAt
}

func (s *tcpStream) IsClosed() bool {
	return s.closed
}

func (s *tcpStream) Stats() Stats {
	stats := s.stats
	s.stats = Stats{}
	return stats
}

func (s *tcpStream) Write(seg *socket.TCPSegment, h Handler) error {
	// 已经关闭的数据流不允许再写入
	if s.closed {
		return ErrClosed
	}
	s.activeAt = seg.Time
	s.stats.Packets++

	if seg.SYN {
		// SYN 占用一个序列号
		s.nextSeq = seg.Seq + 1
		s.synced = true
	}

	if len(seg.Payload) > 0 {
		s.writePayload(seg, h)
	}

	if seg.FIN || seg.RST {
		s.closed = true
		s.cw.Close()
		h.OnClose(seg.Time)
	}
	return nil
}

func (s *tcpStream) writePayload(seg *socket.TCPSegment, h Handler) {
	payload := seg.Payload

	// 抓包开始时链接已经建立 以第一个数据包为起点
	if !s.synced {
		s.nextSeq = seg.Seq
		s.synced = true
	}

	// 序列号按 uint32 回绕比较
	delta := int32(seg.Seq - s.nextSeq)
	switch {
	case delta < 0:
		// 重传数据 只保留尚未收到的部分
		overlap := int(-delta)
		if overlap >= len(payload) {
			return
		}
		payload = payload[overlap:]

	case delta > maxGap:
		s.nextSeq = seg.Seq

	case delta > 0:
		s.stats.Gaps++
		h.OnGap(seg.Time, int(delta))
	}

	s.stats.Bytes += uint64(len(payload))
	s.cw.Write(payload, func(r zerocopy.Reader) {
		h.OnData(seg.Time, r)
	})
	s.nextSeq = seg.Seq + uint32(len(seg.Payload))
}
