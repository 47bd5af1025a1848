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

package socket

import (
	"fmt"
	"time"
)

// TCPSegment 从抓包数据中解析出的 TCP 报文
type TCPSegment struct {
	Tuple   Tuple
	Time    time.Time
	SYN     bool
	ACK     bool
	FIN     bool
	RST     bool
	Seq     uint32
	Payload []byte
}

func (s TCPSegment) SocketTuple() Tuple {
	return s.Tuple
}

// IsHandshake 三次握手的第一个报文 发送方即为客户端
func (s TCPSegment) IsHandshake() bool {
	return s.SYN && !s.ACK
}

func (s TCPSegment) String() string {
	return fmt.Sprintf("stream %s seq: %d recv %d bytes", s.Tuple, s.Seq, len(s.Payload))
}
