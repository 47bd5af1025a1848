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
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/htp/common"
	"github.com/packetd/htp/common/socket"
	"github.com/packetd/htp/internal/splitio"
	"github.com/packetd/htp/internal/zerocopy"
)

func newError(format string, args ...any) error {
	format = "layer4/stream: " + format
	return errors.Errorf(format, args...)
}

var (
	// ErrSocketNotMatch socket 无法正确匹配
	ErrSocketNotMatch = newError("socket not match")

	// ErrClosed stream 已经处于 Close 状态
	ErrClosed = newError("closed")
)

type Stats struct {
	Packets uint64
	Bytes   uint64
	Gaps    uint64
}

// Handler 接收单个方向上按序列号排列后的字节流
//
// OnData 中的 Reader 只在回调期间有效
type Handler interface {
	OnData(ts time.Time, r zerocopy.Reader)
	OnGap(ts time.Time, n int)
	OnClose(ts time.Time)
}

type Stream interface {
	// SocketTuple 返回 Stream socket.Tuple 标识
	SocketTuple() socket.Tuple

	// ActiveAt 返回最后一个数据包的时间
	ActiveAt() time.Time

	// IsClosed 依赖 FIN 或者 RST 数据包来判断
	IsClosed() bool

	// Stats 返回并清空 Stream 打点数据
	Stats() Stats

	// Write 写入一个 TCP 报文 并把新增的数据交由 Handler 处理
	//
	// Write 没有实现完整的 TCP 重组 乱序到达的数据包会被当作缺失数据上报
	// 之后迟到的数据包则作为重传丢弃
	Write(seg *socket.TCPSegment, h Handler) error
}

// Conn 一条 TCP 链接 包含客户端与服务端两个方向的 Stream
type Conn struct {
	client, server         socket.Tuple
	request, response      Stream
	reqHandler, resHandler Handler
}

// NewConn 创建链接 client 为客户端发出数据包的四元组
func NewConn(client socket.Tuple, reqHandler, resHandler Handler) *Conn {
	return &Conn{
		client:     client,
		server:     client.Mirror(),
		request:    NewTCPStream(client),
		response:   NewTCPStream(client.Mirror()),
		reqHandler: reqHandler,
		resHandler: resHandler,
	}
}

type TupleStats struct {
	Tuple socket.Tuple
	Stats Stats
}

func (c *Conn) Stats() []TupleStats {
	return []TupleStats{
		{Tuple: c.client, Stats: c.request.Stats()},
		{Tuple: c.server, Stats: c.response.Stats()},
	}
}

// ActiveAt 两个方向中较晚的活跃时间
func (c *Conn) ActiveAt() time.Time {
	t := c.request.ActiveAt()
	if r := c.response.ActiveAt(); r.After(t) {
		return r
	}
	return t
}

func (c *Conn) Write(seg *socket.TCPSegment) error {
	switch seg.SocketTuple() {
	case c.client:
		return c.request.Write(seg, c.reqHandler)
	case c.server:
		return c.response.Write(seg, c.resHandler)
	}
	// 拒绝写入非此链接的 SocketTuple
	return ErrSocketNotMatch
}

func (c *Conn) IsClosed() bool {
	return c.request.IsClosed() && c.response.IsClosed()
}

// chunkWriter 把较大的 payload 切分成多次投递
//
// 切分点尽量落在 LF 之后 单次投递不超过 common.ReadWriteBlockSize + 64 字节
type chunkWriter struct {
	zb zerocopy.Buffer
}

func newChunkWriter() *chunkWriter {
	return &chunkWriter{
		zb: zerocopy.NewBuffer(nil),
	}
}

func (cw *chunkWriter) Write(payload []byte, f func(r zerocopy.Reader)) {
	const buffered = 64
	var l, r int
	size := len(payload)
	for l < size {
		r = l + common.ReadWriteBlockSize - buffered
		if r >= size {
			r = size
		} else {
			end := r + buffered
			if end > size {
				end = size
			}
			if idx := bytes.IndexByte(payload[r:end], splitio.CharLF[0]); idx >= 0 {
				r += idx + 1
			}
		}

		cw.zb.Reset(payload[l:r])
		if f != nil {
			f(cw.zb)
		}
		l = r
	}
}

func (cw *chunkWriter) Close() {
	cw.zb.Close()
}
