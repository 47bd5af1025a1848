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

package htp

import (
	"bytes"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/packetd/htp/internal/bufpool"
	"github.com/packetd/htp/protocol/htp/flags"
)

type direction uint8

const (
	dirRequest direction = iota
	dirResponse
)

func (d direction) String() string {
	if d == dirResponse {
		return "response"
	}
	return "request"
}

// eol 行尾类型
type eol uint8

const (
	eolNone eol = iota
	eolLF
	eolCRLF
	eolCR
	eolLFCR
)

// deformed 非 LF 与 CRLF 的行尾
func (e eol) deformed() bool {
	return e == eolCR || e == eolLFCR
}

type line struct {
	raw  []byte // 包含行尾
	data []byte // 不含行尾
	eol  eol

	// fold 响应方向中单独的 CR 之后紧跟普通字符 下一行按折叠处理
	fold bool
}

func (l line) empty() bool {
	return len(l.data) == 0
}

// pendingHeader 等待折叠行的头部
type pendingHeader struct {
	data  []byte
	flags flags.Flags
}

// cursor 单个方向的解析游标
type cursor struct {
	dir  direction
	data []byte
	pos  int

	// gap 当前输入为缺失数据时剩余的字节数
	gap   int
	isGap bool

	ts     time.Time
	buf    *bytebufferpool.ByteBuffer
	header *pendingHeader

	chunkedLeft int64
	bodyLeft    int64

	state     State
	prevState State
	stream    StreamState

	chunkIndex        int64
	requestChunkIndex int64
	foldNext          bool
}

func newCursor(dir direction) cursor {
	return cursor{
		dir:    dir,
		buf:    bufpool.Acquire(),
		state:  StateIdle,
		stream: StreamNew,
	}
}

func (c *cursor) reset(data []byte, gap int) {
	c.data = data
	c.pos = 0
	c.gap = gap
	c.isGap = gap > 0
	c.chunkIndex++
}

// avail 当前数据块中尚未消费的部分 缺失数据时为 nil
func (c *cursor) avail() []byte {
	if c.pos >= len(c.data) {
		return nil
	}
	return c.data[c.pos:]
}

// remaining 尚未消费的字节数 包括缺失数据
func (c *cursor) remaining() int {
	if c.isGap {
		return c.gap
	}
	return len(c.data) - c.pos
}

func (c *cursor) consume(n int) {
	if c.isGap {
		c.gap -= n
		return
	}
	c.pos += n
}

func (c *cursor) consumeAll() {
	if c.isGap {
		c.gap = 0
		return
	}
	c.pos = len(c.data)
}

func (c *cursor) closed() bool {
	return c.stream == StreamClosed
}

func (c *cursor) setState(s State) {
	c.prevState = c.state
	c.state = s
}

func (c *cursor) release() {
	bufpool.Release(c.buf)
	c.buf = nil
}

func (c *cursor) pendingLen() int {
	if c.header == nil {
		return 0
	}
	return len(c.header.data)
}

type eolMatch struct {
	n       int // 行长度 包含行尾
	lineLen int
	kind    eol
	fold    bool
	ok      bool
}

// findEOL 在缓存数据 a 与新数据 b 的拼接视图上查找行尾
//
// 请求方向只认 LF 响应方向还接受单独的 CR 与 LF CR
// 行尾的判定依赖后续字节而数据不足时返回 ok=false 连接关闭时不再等待
func findEOL(a, b []byte, response, closed bool) eolMatch {
	total := len(a) + len(b)
	at := func(i int) byte {
		if i < len(a) {
			return a[i]
		}
		return b[i-len(a)]
	}

	for i := 0; i < total; i++ {
		switch at(i) {
		case '\n':
			lineLen := i
			if i > 0 && at(i-1) == '\r' {
				lineLen = i - 1
			}
			kind := eolLF
			if lineLen < i {
				kind = eolCRLF
			}
			if !response || lineLen == 0 {
				return eolMatch{n: i + 1, lineLen: lineLen, kind: kind, ok: true}
			}

			switch {
			case i+1 < total && at(i+1) == '\r':
				if i+2 < total {
					if at(i+2) == '\n' {
						return eolMatch{n: i + 1, lineLen: lineLen, kind: kind, ok: true}
					}
					return eolMatch{n: i + 2, lineLen: lineLen, kind: eolLFCR, ok: true}
				}
				if closed {
					return eolMatch{n: i + 2, lineLen: lineLen, kind: eolLFCR, ok: true}
				}
				return eolMatch{}
			case i+1 == total && !closed:
				return eolMatch{}
			}
			return eolMatch{n: i + 1, lineLen: lineLen, kind: kind, ok: true}

		case '\r':
			if !response {
				continue
			}
			if i+1 == total {
				if closed {
					return eolMatch{n: i + 1, lineLen: i, kind: eolCR, ok: true}
				}
				return eolMatch{}
			}
			switch at(i + 1) {
			case '\n':
				continue
			case '\r':
				if i+2 == total && !closed {
					return eolMatch{}
				}
				if i+2 < total && at(i+2) == '\n' {
					return eolMatch{n: i + 3, lineLen: i, kind: eolCR, ok: true}
				}
				return eolMatch{n: i + 1, lineLen: i, kind: eolCR, ok: true}
			}
			return eolMatch{n: i + 1, lineLen: i, kind: eolCR, fold: true, ok: true}
		}
	}

	if closed && total > 0 {
		return eolMatch{n: total, lineLen: total, kind: eolNone, ok: true}
	}
	return eolMatch{}
}

// readLine 读取一个完整的行 数据不足时缓存剩余数据并返回 ok=false
func (p *ConnParser) readLine(c *cursor) (line, bool, Status) {
	return p.scanLine(c, c.dir == dirResponse)
}

// readLineLF 读取以 LF 结尾的行 两个方向都不接受单独的 CR
func (p *ConnParser) readLineLF(c *cursor) (line, bool, Status) {
	return p.scanLine(c, false)
}

func (p *ConnParser) scanLine(c *cursor, lenient bool) (line, bool, Status) {
	a := c.buf.B
	b := c.avail()
	m := findEOL(a, b, lenient, c.closed())
	if !m.ok {
		if len(b) == 0 {
			return line{}, false, StatusData
		}
		if st := p.bufferData(c, b); st != StatusOK {
			return line{}, false, st
		}
		c.consume(len(b))
		return line{}, false, StatusDataBuffer
	}

	fromB := m.n - len(a)
	if fromB < 0 {
		fromB = 0
	}
	var raw []byte
	if len(a) > 0 {
		if st := p.checkFieldLimit(c, fromB); st != StatusOK {
			return line{}, false, st
		}
		_, _ = c.buf.Write(b[:fromB])
		raw = bytes.Clone(c.buf.B[:m.n])
		rest := c.buf.B[m.n:]
		c.buf.Reset()
		if len(rest) > 0 {
			// 行尾之后仍有缓存数据 (响应方向的 LF CR 预读) 留给下一行
			_, _ = c.buf.Write(bytes.Clone(rest))
		}
	} else {
		raw = b[:fromB]
	}
	c.consume(fromB)

	return line{
		raw:  raw,
		data: raw[:m.lineLen],
		eol:  m.kind,
		fold: m.fold,
	}, true, StatusOK
}

// bufferData 缓存跨越数据块的行片段
func (p *ConnParser) bufferData(c *cursor, b []byte) Status {
	if st := p.checkFieldLimit(c, len(b)); st != StatusOK {
		return st
	}
	_, _ = c.buf.Write(b)
	return StatusOK
}

// checkFieldLimit 缓存区追加 n 字节后连同未完成的头部不得超过 FieldLimit
func (p *ConnParser) checkFieldLimit(c *cursor, n int) Status {
	if c.buf.Len()+n+c.pendingLen() <= p.cfg.FieldLimit {
		return StatusOK
	}
	code := LogRequestFieldTooLong
	if c.dir == dirResponse {
		code = LogResponseFieldTooLong
	}
	p.log(p.cursorTx(c), LogError, code, "field length exceeds limit %d", p.cfg.FieldLimit)
	return StatusError
}
