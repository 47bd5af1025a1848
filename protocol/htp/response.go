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
	"github.com/packetd/htp/internal/bstr"
	"github.com/packetd/htp/protocol/htp/flags"
	"github.com/packetd/htp/protocol/htp/multipart"
)

func (p *ConnParser) resIdle(c *cursor) Status {
	if c.remaining() == 0 {
		return StatusData
	}

	tx := p.conn.Tx(p.resTxIndex)
	if tx == nil {
		var st Status
		if tx, st = p.synthesizeRequest(); st != StatusOK {
			return st
		}
	}

	tx.ResponseProgress = ProgressLine
	if st := runTxHook(&p.cfg.Hooks.ResponseStart, tx); st != StatusOK {
		return st
	}

	if tx.IsProtocol09 {
		tx.ResponseProtocolNumber = Protocol09
		tx.ResponseTransferCoding = CodingIdentity
		tx.ResponseProgress = ProgressBody
		c.setState(StateBodyIdentityStreamClose)
		return StatusOK
	}
	c.setState(StateLine)
	return StatusOK
}

// synthesizeRequest 响应没有可以匹配的请求时合成一个已经完成的请求
func (p *ConnParser) synthesizeRequest() (*Transaction, Status) {
	tx := p.conn.createTx(p.cfg)
	p.resTxIndex = tx.Index
	p.log(tx, LogError, LogUnableToMatchResponseToRequest, "unable to match response to request")

	tx.RequestURI = []byte(unseenRequestURI)
	tx.RequestProgress = ProgressLine
	if st := p.processRequestURI(tx); st != StatusOK {
		return nil, st
	}
	tx.RequestTransferCoding = CodingNoBody
	tx.RequestProgress = ProgressComplete
	return tx, StatusOK
}

func (p *ConnParser) resLine(c *cursor) Status {
	tx := p.conn.Tx(p.resTxIndex)
	ln, ok, st := p.readLine(c)
	if !ok {
		return st
	}

	if len(bstr.TrimSpace(ln.data)) == 0 {
		if ln.eol == eolNone {
			return StatusData
		}
		tx.ResponseIgnoredLines++
		return StatusOK
	}

	if treatAsBody(ln.data) {
		tx.Flags |= flags.StatusLineInvalid
		p.log(tx, LogWarning, LogResponseLineInvalidProtocol, "response line: not a status line, treating as body")
		tx.ResponseTransferCoding = CodingIdentity
		tx.ResponseProgress = ProgressBody
		c.setState(StateBodyIdentityStreamClose)

		tx.ResponseMessageLen += int64(len(ln.raw))
		return p.responseBodyData(tx, ln.raw, len(ln.raw))
	}

	tx.ResponseLine = bstr.Clone(ln.data)
	sl := parseStatusLine(tx.ResponseLine)
	tx.ResponseProtocol = sl.protocol
	tx.ResponseStatus = sl.status
	tx.ResponseMessage = sl.message

	num, extra := parseProtocol(sl.protocol)
	tx.ResponseProtocolNumber = num
	if extra {
		tx.Flags |= flags.ProtocolExtraData
		p.log(tx, LogWarning, LogProtocolContainsExtraData, "response line: protocol contains extra data")
	}
	if num == ProtocolInvalid {
		p.log(tx, LogWarning, LogResponseLineInvalidProtocol, "response line: invalid protocol %q", sl.protocol)
	}
	tx.ResponseStatusNumber = parseStatus(sl.status)
	if tx.ResponseStatusNumber == StatusInvalid {
		tx.Flags |= flags.StatusLineInvalid
		p.log(tx, LogWarning, LogResponseLineInvalidResponseStatus, "response line: invalid status %q", sl.status)
	}

	if st := runTxHook(&p.cfg.Hooks.ResponseLine, tx); st != StatusOK {
		return st
	}
	tx.ResponseProgress = ProgressHeaders
	c.setState(StateHeaders)
	return StatusOK
}

func (p *ConnParser) resHeaders(c *cursor) Status {
	tx := p.conn.Tx(p.resTxIndex)
	done, st := p.parseHeaders(c, tx)
	if !done {
		return st
	}

	if tx.ResponseProgress == ProgressTrailer {
		if st := runTxHook(&p.cfg.Hooks.ResponseTrailer, tx); st != StatusOK {
			return st
		}
		c.setState(StateFinalize)
		return StatusOK
	}
	c.setState(StateBodyDetermine)
	return StatusOK
}

// resBodyDetermine 根据请求方法 状态码以及响应头确定响应体的长度
func (p *ConnParser) resBodyDetermine(c *cursor) Status {
	tx := p.conn.Tx(p.resTxIndex)
	te := tx.ResponseHeaders.Get("transfer-encoding")
	cl := tx.ResponseHeaders.Get("content-length")

	if tx.isConnect() {
		switch {
		case tx.responseStatusIn(200, 299):
			// 隧道建立 响应到此结束
			tx.ResponseTransferCoding = CodingNoBody
			c.setState(StateFinalize)
			return p.responseHeadersDone(tx)
		case tx.ResponseStatusNumber == 407:
			// 需要代理认证 请求方向可以继续
		default:
			p.resDataOtherAtTxEnd = true
		}
	}

	switch {
	case tx.ResponseStatusNumber == 101:
		if te == nil && cl == nil {
			tx.ResponseTransferCoding = CodingNoBody
			c.setState(StateFinalize)
			return p.responseHeadersDone(tx)
		}
		p.log(tx, LogWarning, LogSwitchingProtoWithContentLength, "switching protocol with Content-Length or Transfer-Encoding")

	case tx.ResponseStatusNumber == 100 && te == nil && cl == nil:
		if tx.Seen100Continue {
			p.log(tx, LogError, LogContinueAlreadySeen, "already seen 100-Continue")
			return StatusError
		}
		tx.Seen100Continue = true
		tx.ResponseHeaders.Reset()
		tx.ResponseProgress = ProgressLine
		c.setState(StateLine)
		return StatusOK
	}

	noBody := tx.RequestMethodNumber == MethodHEAD ||
		(tx.responseStatusIn(100, 199) && tx.ResponseStatusNumber != 101) ||
		tx.ResponseStatusNumber == 204 ||
		tx.ResponseStatusNumber == 304
	if noBody {
		tx.ResponseTransferCoding = CodingNoBody
		if te != nil || (cl != nil && !isZeroLength(cl.Value)) {
			tx.Flags |= flags.ResponseUnexpectedBody
			p.log(tx, LogWarning, LogResponseBodyUnexpected, "unexpected response body")
		}
		c.setState(StateFinalize)
		return p.responseHeadersDone(tx)
	}

	if ct := tx.ResponseHeaders.Value("content-type"); ct != nil {
		tx.ResponseContentType = contentTypeOf(ct)
		if bstr.HasPrefixFold(tx.ResponseContentType, "multipart/byteranges") {
			p.log(tx, LogError, LogResponseMultipartByteranges, "multipart/byteranges responses are not supported")
			return StatusError
		}
	}

	switch {
	case te != nil && bstr.IndexFold(te.Value, "chunked") >= 0:
		if !bstr.EqualFold(te.Value, "chunked") {
			p.log(tx, LogWarning, LogResponseAbnormalTransferEncoding, "abnormal Transfer-Encoding %q", te.Value)
		}
		if tx.ResponseProtocolNumber < Protocol11 {
			p.log(tx, LogWarning, LogResponseChunkedOldProto, "chunked response with protocol older than HTTP/1.1")
		}
		if cl != nil {
			tx.Flags |= flags.RequestSmuggling
		}
		tx.ResponseTransferCoding = CodingChunked
		tx.ResponseProgress = ProgressBody
		c.setState(StateBodyChunkedLength)

	case cl != nil:
		n, ok := parseContentLength(cl.Value)
		if !ok {
			tx.Flags |= flags.ResponseInvalidCL
			p.log(tx, LogError, LogInvalidContentLengthFieldInResponse, "invalid Content-Length %q", cl.Value)
			return StatusError
		}
		tx.ResponseContentLength = n
		tx.ResponseTransferCoding = CodingIdentity
		if n == 0 {
			c.setState(StateFinalize)
		} else {
			tx.ResponseProgress = ProgressBody
			c.bodyLeft = n
			c.setState(StateBodyIdentityCLKnown)
		}

	default:
		if te != nil {
			p.log(tx, LogWarning, LogInvalidTransferEncodingValueInResponse, "invalid Transfer-Encoding %q", te.Value)
		}
		tx.ResponseTransferCoding = CodingIdentity
		tx.ResponseProgress = ProgressBody
		c.setState(StateBodyIdentityStreamClose)
	}

	return p.responseHeadersDone(tx)
}

func isZeroLength(v []byte) bool {
	n, ok := parseContentLength(v)
	return ok && n == 0
}

// responseHeadersDone 建立解压链并执行 response_headers 回调
func (p *ConnParser) responseHeadersDone(tx *Transaction) Status {
	if ct := tx.ResponseHeaders.Value("content-type"); ct != nil && tx.ResponseContentType == nil {
		tx.ResponseContentType = contentTypeOf(ct)
	}
	if st := p.setupResponseDecompression(tx); st != StatusOK {
		return st
	}
	return runTxHook(&p.cfg.Hooks.ResponseHeaders, tx)
}

func (p *ConnParser) resBodyIdentityCLKnown(c *cursor) Status {
	tx := p.conn.Tx(p.resTxIndex)
	n := c.remaining()
	if n == 0 {
		if c.closed() {
			c.setState(StateFinalize)
			return StatusOK
		}
		return StatusData
	}
	if int64(n) > c.bodyLeft {
		n = int(c.bodyLeft)
	}

	data := c.avail()
	if data != nil {
		data = data[:n]
	}
	c.consume(n)
	c.bodyLeft -= int64(n)
	tx.ResponseMessageLen += int64(n)

	if st := p.responseBodyData(tx, data, n); st != StatusOK {
		return st
	}
	if c.bodyLeft == 0 {
		c.setState(StateFinalize)
	}
	return StatusOK
}

// resBodyIdentityStreamClose 响应体持续到连接关闭
func (p *ConnParser) resBodyIdentityStreamClose(c *cursor) Status {
	tx := p.conn.Tx(p.resTxIndex)
	n := c.remaining()
	if n == 0 {
		if c.closed() {
			c.setState(StateFinalize)
			return StatusOK
		}
		return StatusData
	}

	data := c.avail()
	c.consumeAll()
	tx.ResponseMessageLen += int64(n)
	if st := p.responseBodyData(tx, data, n); st != StatusOK {
		return st
	}
	return StatusData
}

func (p *ConnParser) resFinalize(c *cursor) Status {
	tx := p.conn.Tx(p.resTxIndex)
	if tx == nil {
		c.setState(StateIdle)
		return StatusOK
	}
	st := p.responseComplete(c, tx)
	if c.isGap {
		c.consumeAll()
	}
	return st
}

// responseComplete 结束响应并推进到下一个事务
func (p *ConnParser) responseComplete(c *cursor, tx *Transaction) Status {
	if tx.ResponseProgress != ProgressComplete {
		if tx.ResponseProgress >= ProgressBody {
			if st := p.responseBodyLast(tx); st != StatusOK {
				return st
			}
		}
		tx.ResponseProgress = ProgressComplete
		if st := runTxHook(&p.cfg.Hooks.ResponseComplete, tx); st != StatusOK {
			return st
		}
	}

	p.resTxIndex++
	c.setState(StateIdle)

	switch {
	case tx.isConnect() && tx.responseStatusIn(200, 299):
		c.stream = StreamTunnel
	case tx.ResponseStatusNumber == 101 && !tx.ResponseHeaders.Has("content-length") && !tx.ResponseHeaders.Has("transfer-encoding"):
		c.stream = StreamTunnel
		if p.req.stream != StreamError && p.req.stream != StreamStop {
			p.req.stream = StreamTunnel
		}
	}

	if st := p.checkTxComplete(tx); st != StatusOK {
		return st
	}
	if p.resDataOtherAtTxEnd {
		p.resDataOtherAtTxEnd = false
		return StatusDataOther
	}
	return StatusOK
}

// putFileData PUT 请求体按文件处理
func (p *ConnParser) putFileData(tx *Transaction, data []byte) Status {
	if tx.putFile == nil {
		return StatusOK
	}
	if data != nil {
		if err := tx.putFile.Append(data); err != nil {
			p.log(tx, LogWarning, LogPutFileError, "put file: %v", err)
		}
	} else if err := tx.putFile.Close(); err != nil {
		p.log(tx, LogWarning, LogPutFileError, "put file: %v", err)
	}
	return p.runFileData(tx, tx.putFile, FileSourcePut, data)
}

func (p *ConnParser) runFileData(tx *Transaction, f *multipart.File, source FileSource, data []byte) Status {
	h := &p.cfg.Hooks.RequestFileData
	if h.Len() == 0 {
		return StatusOK
	}
	return statusOf(h.Run(&FileData{Tx: tx, File: f, Source: source, Data: data}))
}
