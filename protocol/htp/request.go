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
	"github.com/packetd/htp/protocol/htp/urlencoded"
)

// unseenRequestURI 无法匹配请求的响应所合成的请求 URI
const unseenRequestURI = "/libhtp::request_uri_not_seen"

func (p *ConnParser) reqIdle(c *cursor) Status {
	if c.remaining() == 0 {
		return StatusData
	}

	tx := p.conn.createTx(p.cfg)
	p.reqTxIndex = tx.Index
	if p.resTxIndex < tx.Index {
		p.conn.Flags |= flags.ConnPipelined
	}
	c.requestChunkIndex = c.chunkIndex
	tx.RequestProgress = ProgressLine

	if st := runTxHook(&p.cfg.Hooks.RequestStart, tx); st != StatusOK {
		return st
	}
	c.setState(StateLine)
	return StatusOK
}

func (p *ConnParser) reqLine(c *cursor) Status {
	tx := p.RequestTx()
	ln, ok, st := p.readLine(c)
	if !ok {
		return st
	}

	if len(bstr.TrimSpace(ln.data)) == 0 {
		if ln.eol == eolNone {
			return StatusData
		}
		tx.RequestIgnoredLines++
		return StatusOK
	}
	return p.processRequestLine(c, tx, bstr.Chomp(ln.data))
}

func (p *ConnParser) processRequestLine(c *cursor, tx *Transaction, line []byte) Status {
	tx.RequestLine = bstr.Clone(line)
	rl := parseRequestLine(tx.RequestLine)

	tx.RequestMethod = rl.method
	tx.RequestMethodNumber = methodOf(rl.method)
	tx.RequestURI = rl.uri
	tx.RequestProtocol = rl.protocol

	if rl.leadingWhitespace {
		p.log(tx, LogWarning, LogRequestLineLeadingWhitespace, "request line: leading whitespace")
		if p.cfg.RequestLineLeadingWhitespaceUnwanted != 0 {
			tx.ResponseStatusExpected = p.cfg.RequestLineLeadingWhitespaceUnwanted
		}
	}
	if rl.methodDelimBad {
		p.log(tx, LogWarning, LogMethodDelimNonCompliant, "request line: non-compliant delimiter between method and URI")
	}
	if rl.uriDelimBad {
		p.log(tx, LogWarning, LogURIDelimNonCompliant, "request line: non-compliant delimiter between URI and protocol")
	}
	if tx.RequestMethodNumber == MethodUnknown {
		p.log(tx, LogNotice, LogRequestLineUnknownMethod, "request line: unknown method %q", rl.method)
	}

	if len(rl.protocol) == 0 {
		tx.IsProtocol09 = true
		tx.RequestProtocolNumber = Protocol09
		p.log(tx, LogWarning, LogRequestLineNoProtocol, "request line: missing protocol")
	} else {
		num, extra := parseProtocol(rl.protocol)
		tx.RequestProtocolNumber = num
		if extra {
			tx.Flags |= flags.ProtocolExtraData
			p.log(tx, LogWarning, LogProtocolContainsExtraData, "request line: protocol contains extra data")
		}
		if num == ProtocolInvalid {
			p.log(tx, LogWarning, LogRequestLineInvalidProtocol, "request line: invalid protocol %q", rl.protocol)
		}
	}

	if st := p.processRequestURI(tx); st != StatusOK {
		return st
	}
	if st := runTxHook(&p.cfg.Hooks.RequestLine, tx); st != StatusOK {
		return st
	}

	if tx.IsProtocol09 {
		tx.RequestTransferCoding = CodingNoBody
		c.setState(StateFinalize)
		return StatusOK
	}
	c.setState(StateProtocol)
	return StatusOK
}

// processRequestURI 拆分并规范化请求 URI 同时解析查询参数
func (p *ConnParser) processRequestURI(tx *Transaction) Status {
	var f flags.Flags
	if tx.isConnect() {
		tx.ParsedURIRaw, f = ParseHostPort(tx.RequestURI)
	} else {
		tx.ParsedURIRaw, f = ParseURI(tx.RequestURI)
	}
	tx.Flags |= f

	normalized, nf, status := normalizeURI(&p.cfg.Decoder, tx.ParsedURIRaw)
	tx.ParsedURI = normalized
	tx.Flags |= nf
	if status != 0 {
		tx.ResponseStatusExpected = status
	}
	if tx.Flags.Has(flags.HostUInvalid) {
		p.log(tx, LogWarning, LogURIHostInvalid, "invalid host in request URI")
	}
	if tx.ParsedURIRaw.Port != nil && tx.ParsedURIRaw.PortNumber < 0 {
		p.log(tx, LogWarning, LogInvalidAuthorityPort, "invalid port in request URI")
	}

	tx.PartialNormalizedURI = normalized.Unparse(false)
	tx.CompleteNormalizedURI = normalized.Unparse(true)

	if p.cfg.ParseURLEncoded && len(tx.ParsedURIRaw.Query) > 0 {
		up := urlencoded.ParseComplete(&p.cfg.Decoder, tx.ParsedURIRaw.Query)
		tx.addParams(up.Params(), ParamSourceQuery)
		tx.Flags |= up.Flags()
	}

	return runTxHook(&p.cfg.Hooks.RequestURINormalize, tx)
}

func (p *ConnParser) reqProtocol(c *cursor) Status {
	tx := p.RequestTx()
	tx.RequestProgress = ProgressHeaders
	c.setState(StateHeaders)
	return StatusOK
}

func (p *ConnParser) reqHeaders(c *cursor) Status {
	tx := p.RequestTx()
	done, st := p.parseHeaders(c, tx)
	if !done {
		return st
	}

	if tx.RequestProgress == ProgressTrailer {
		if st := runTxHook(&p.cfg.Hooks.RequestTrailer, tx); st != StatusOK {
			return st
		}
		c.setState(StateFinalize)
		return StatusOK
	}

	if c.chunkIndex > c.requestChunkIndex {
		tx.MultiPacketHead = true
	}
	if st := p.processRequestHeaders(tx); st != StatusOK {
		return st
	}
	c.setState(StateConnectCheck)
	return StatusOK
}

// processRequestHeaders 根据请求头确定消息体的传输方式并解析常用头部
func (p *ConnParser) processRequestHeaders(tx *Transaction) Status {
	te := tx.RequestHeaders.Get("transfer-encoding")
	cl := tx.RequestHeaders.Get("content-length")

	tx.RequestTransferCoding = CodingNoBody
	chunked := false
	if te != nil {
		if bstr.IndexFold(te.Value, "chunked") >= 0 {
			chunked = true
			if !bstr.EqualFold(te.Value, "chunked") {
				tx.Flags |= flags.RequestInvalidTE
				p.log(tx, LogWarning, LogInvalidTransferEncodingValueInRequest, "invalid Transfer-Encoding %q", te.Value)
			}
			if tx.RequestProtocolNumber < Protocol11 {
				tx.Flags |= flags.RequestInvalidTE | flags.RequestSmuggling
			}
			if cl != nil {
				tx.Flags |= flags.RequestSmuggling
			}
			tx.RequestTransferCoding = CodingChunked
		} else {
			// 非 chunked 的 Transfer-Encoding 视为无效 存在 Content-Length 时按其处理
			tx.Flags |= flags.RequestInvalidTE
			p.log(tx, LogWarning, LogInvalidTransferEncodingValueInRequest, "invalid Transfer-Encoding %q", te.Value)
		}
	}

	if !chunked && cl != nil {
		n, ok := parseContentLength(cl.Value)
		if !ok {
			tx.Flags |= flags.RequestInvalidCL | flags.RequestInvalid
			p.log(tx, LogError, LogRequestInvalidCL, "invalid Content-Length %q", cl.Value)
			return StatusError
		}
		tx.RequestContentLength = n
		if n > 0 {
			tx.RequestTransferCoding = CodingIdentity
		}
	}

	p.processRequestHost(tx)

	if ct := tx.RequestHeaders.Value("content-type"); ct != nil {
		tx.RequestContentType = contentTypeOf(ct)
	}
	if p.cfg.ParseRequestCookies {
		p.parseCookies(tx)
	}
	if p.cfg.ParseRequestAuth {
		p.parseAuthorization(tx)
	}
	p.setupRequestBody(tx)

	return runTxHook(&p.cfg.Hooks.RequestHeaders, tx)
}

// processRequestHost 协调 URI 中的主机与 Host 头部
func (p *ConnParser) processRequestHost(tx *Transaction) {
	h := tx.RequestHeaders.Get("host")
	uri := tx.ParsedURI

	if h != nil && h.Flags.Has(flags.FieldRepeated) {
		tx.Flags |= flags.HostAmbiguous
		p.log(tx, LogWarning, LogHostHeaderAmbiguous, "host header repeated")
	}

	if uri != nil && len(uri.Hostname) > 0 {
		tx.RequestHostname = uri.Hostname
		tx.RequestPortNumber = uri.PortNumber
		if h == nil {
			return
		}
		hn, port, ok := parseHostHeader(h.Value)
		if !ok {
			tx.Flags |= flags.HostHInvalid
			p.log(tx, LogWarning, LogHeaderHostInvalid, "invalid Host header %q", h.Value)
		}
		if !bstr.EqualFold(hn, string(uri.Hostname)) || (port > 0 && uri.PortNumber > 0 && port != uri.PortNumber) {
			tx.Flags |= flags.HostAmbiguous
			p.log(tx, LogWarning, LogHostHeaderAmbiguous, "host information ambiguous")
		}
		return
	}

	if h == nil {
		if tx.RequestProtocolNumber >= Protocol11 {
			tx.Flags |= flags.HostMissing
			p.log(tx, LogWarning, LogMissingHostHeader, "host information missing")
		}
		return
	}

	hn, port, ok := parseHostHeader(h.Value)
	if !ok {
		tx.Flags |= flags.HostHInvalid
		p.log(tx, LogWarning, LogHeaderHostInvalid, "invalid Host header %q", h.Value)
	}
	tx.RequestHostname = hn
	tx.RequestPortNumber = port
}

// parseHostHeader 解析 Host 头部 返回小写主机名以及端口 (-1 表示不存在)
func parseHostHeader(v []byte) ([]byte, int, bool) {
	u, f := ParseHostPort(v)
	host, ok := normalizeHostname(u.Hostname)
	if f.Has(flags.HostUInvalid) {
		ok = false
	}
	return host, u.PortNumber, ok
}

// contentTypeOf 取分号之前的部分并转换为小写
func contentTypeOf(v []byte) []byte {
	end := len(v)
	for i, b := range v {
		if b == ';' || b == ',' || b == ' ' || b == '\t' {
			end = i
			break
		}
	}
	ct := bstr.Clone(bstr.TrimSpace(v[:end]))
	bstr.ToLower(ct)
	return ct
}

func (p *ConnParser) reqConnectCheck(c *cursor) Status {
	tx := p.RequestTx()
	if tx.isConnect() {
		c.setState(StateConnectWaitResponse)
		return StatusDataOther
	}
	c.setState(StateBodyDetermine)
	return StatusOK
}

// reqConnectWaitResponse 等待 CONNECT 的响应状态
func (p *ConnParser) reqConnectWaitResponse(c *cursor) Status {
	tx := p.RequestTx()
	if tx.ResponseProgress <= ProgressLine {
		return StatusDataOther
	}

	if tx.responseStatusIn(200, 299) {
		c.setState(StateConnectProbeData)
	} else {
		c.setState(StateFinalize)
	}
	return StatusOK
}

// reqConnectProbeData 检查 CONNECT 成功之后的数据是否仍然是 HTTP
func (p *ConnParser) reqConnectProbeData(c *cursor) Status {
	data := c.avail()
	if len(data) == 0 {
		if c.closed() {
			c.setState(StateFinalize)
			return StatusOK
		}
		return StatusData
	}

	i := 0
	for i < len(data) && bstr.IsSpace(data[i]) {
		i++
	}
	start := i
	for i < len(data) && !bstr.IsSpace(data[i]) {
		i++
	}
	if methodOf(data[start:i]) != MethodUnknown {
		c.setState(StateFinalize)
		return StatusOK
	}

	tx := p.RequestTx()
	if st := p.requestComplete(c, tx); st != StatusOK {
		return st
	}
	c.stream = StreamTunnel
	if p.res.stream != StreamError && p.res.stream != StreamStop {
		p.res.stream = StreamTunnel
	}
	return StatusOK
}

func (p *ConnParser) reqBodyDetermine(c *cursor) Status {
	tx := p.RequestTx()
	switch tx.RequestTransferCoding {
	case CodingChunked:
		tx.RequestProgress = ProgressBody
		c.setState(StateBodyChunkedLength)
	case CodingIdentity:
		tx.RequestProgress = ProgressBody
		c.bodyLeft = tx.RequestContentLength
		c.setState(StateBodyIdentity)
	default:
		c.setState(StateFinalize)
	}
	return StatusOK
}

func (p *ConnParser) reqBodyIdentity(c *cursor) Status {
	tx := p.RequestTx()
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
	tx.RequestMessageLen += int64(n)

	if st := p.requestBodyData(tx, data, n); st != StatusOK {
		return st
	}
	if c.bodyLeft == 0 {
		c.setState(StateFinalize)
	}
	return StatusOK
}

func (p *ConnParser) reqFinalize(c *cursor) Status {
	tx := p.RequestTx()
	if tx == nil {
		c.setState(StateIdle)
		return StatusOK
	}
	if st := p.requestComplete(c, tx); st != StatusOK {
		return st
	}
	if c.isGap {
		// 请求已经结束 剩余的缺失数据无法归属
		c.consumeAll()
	}
	return StatusOK
}

// requestComplete 结束请求 依次完成消息体解析器 request_complete 以及事务完成检查
func (p *ConnParser) requestComplete(c *cursor, tx *Transaction) Status {
	if tx.RequestProgress != ProgressComplete {
		if tx.RequestProgress >= ProgressBody {
			if st := p.requestBodyLast(tx); st != StatusOK {
				return st
			}
		}
		tx.RequestProgress = ProgressComplete
		if st := runTxHook(&p.cfg.Hooks.RequestComplete, tx); st != StatusOK {
			return st
		}
	}

	if tx.IsProtocol09 {
		c.setState(StateIgnoreDataAfterHTTP09)
	} else {
		c.setState(StateIdle)
	}
	p.reqTxIndex = -1
	return p.checkTxComplete(tx)
}

func (p *ConnParser) reqIgnoreDataAfterHTTP09(c *cursor) Status {
	if c.remaining() > 0 {
		p.conn.Flags |= flags.ConnHTTP09Extra
		c.consumeAll()
	}
	return StatusData
}
