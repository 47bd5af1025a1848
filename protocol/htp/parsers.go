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

	"golang.org/x/net/http/httpguts"

	"github.com/packetd/htp/internal/bstr"
	"github.com/packetd/htp/protocol/htp/flags"
)

// Method 请求方法编号
type Method uint8

const (
	MethodUnknown Method = iota
	MethodHEAD
	MethodGET
	MethodPUT
	MethodPOST
	MethodDELETE
	MethodCONNECT
	MethodOPTIONS
	MethodTRACE
	MethodPATCH
	MethodPROPFIND
	MethodPROPPATCH
	MethodMKCOL
	MethodCOPY
	MethodMOVE
	MethodLOCK
	MethodUNLOCK
	MethodVersionControl
	MethodCHECKOUT
	MethodUNCHECKOUT
	MethodCHECKIN
	MethodUPDATE
	MethodLABEL
	MethodREPORT
	MethodMKWORKSPACE
	MethodMKACTIVITY
	MethodBaselineControl
	MethodMERGE
	MethodInvalid
)

var methodNames = [...]string{
	MethodUnknown:         "UNKNOWN",
	MethodHEAD:            "HEAD",
	MethodGET:             "GET",
	MethodPUT:             "PUT",
	MethodPOST:            "POST",
	MethodDELETE:          "DELETE",
	MethodCONNECT:         "CONNECT",
	MethodOPTIONS:         "OPTIONS",
	MethodTRACE:           "TRACE",
	MethodPATCH:           "PATCH",
	MethodPROPFIND:        "PROPFIND",
	MethodPROPPATCH:       "PROPPATCH",
	MethodMKCOL:           "MKCOL",
	MethodCOPY:            "COPY",
	MethodMOVE:            "MOVE",
	MethodLOCK:            "LOCK",
	MethodUNLOCK:          "UNLOCK",
	MethodVersionControl:  "VERSION-CONTROL",
	MethodCHECKOUT:        "CHECKOUT",
	MethodUNCHECKOUT:      "UNCHECKOUT",
	MethodCHECKIN:         "CHECKIN",
	MethodUPDATE:          "UPDATE",
	MethodLABEL:           "LABEL",
	MethodREPORT:          "REPORT",
	MethodMKWORKSPACE:     "MKWORKSPACE",
	MethodMKACTIVITY:      "MKACTIVITY",
	MethodBaselineControl: "BASELINE-CONTROL",
	MethodMERGE:           "MERGE",
	MethodInvalid:         "INVALID",
}

func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return "UNKNOWN"
}

// methodOf 方法名区分大小写
func methodOf(b []byte) Method {
	for m := MethodHEAD; m < MethodInvalid; m++ {
		if string(b) == methodNames[m] {
			return m
		}
	}
	return MethodUnknown
}

// 协议版本编号
const (
	ProtocolInvalid = -2
	ProtocolUnknown = -1
	Protocol09      = 9
	Protocol10      = 100
	Protocol11      = 101
)

// StatusInvalid 无法解析的响应状态码
const StatusInvalid = -1

// parseProtocol 解析 HTTP/x.y 返回协议编号以及版本号之后是否还有多余数据
func parseProtocol(p []byte) (int, bool) {
	t := bstr.TrimSpace(p)
	if len(t) < 8 || !bstr.HasPrefixFold(t, "HTTP/") {
		return ProtocolInvalid, false
	}
	major, dot, minor := t[5], t[6], t[7]
	extra := len(t) > 8
	if dot != '.' || !isDigit(major) || !isDigit(minor) {
		return ProtocolInvalid, extra
	}
	if extra && isDigit(t[8]) {
		return ProtocolInvalid, extra
	}

	switch {
	case major == '0' && minor == '9':
		return Protocol09, extra
	case major == '1' && minor == '0':
		return Protocol10, extra
	case major == '1' && minor == '1':
		return Protocol11, extra
	}
	return ProtocolInvalid, extra
}

// parseStatus 状态码必须为三位数字且位于 100-999
func parseStatus(p []byte) int {
	t := bstr.TrimSpace(p)
	if len(t) != 3 {
		return StatusInvalid
	}
	n := 0
	for _, c := range t {
		if !isDigit(c) {
			return StatusInvalid
		}
		n = n*10 + int(c-'0')
	}
	if n < 100 {
		return StatusInvalid
	}
	return n
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// parseContentLength 允许首尾空白 其余内容必须全为数字
func parseContentLength(p []byte) (int64, bool) {
	t := bstr.TrimSpace(p)
	if len(t) == 0 {
		return -1, false
	}
	var n int64
	for _, c := range t {
		if !isDigit(c) {
			return -1, false
		}
		if n > (1<<62)/10 {
			return -1, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}

type chunkLength struct {
	n         int64
	valid     bool
	empty     bool
	extension bool
}

// parseChunkedLength 解析 chunk 长度行
//
// 行首允许出现 CR LF SP HT VT FF 分号之后的扩展被丢弃
func parseChunkedLength(line []byte) chunkLength {
	i := 0
	for i < len(line) && bstr.IsSpace(line[i]) {
		i++
	}
	rest := line[i:]

	var cl chunkLength
	if idx := bytes.IndexByte(rest, ';'); idx >= 0 {
		rest = rest[:idx]
		cl.extension = true
	}
	rest = bstr.TrimSpace(rest)
	if len(rest) == 0 {
		cl.empty = !cl.extension
		return cl
	}

	for _, c := range rest {
		if !isHexDigit(c) {
			return cl
		}
		if cl.n > (1<<62)>>4 {
			return cl
		}
		cl.n = cl.n<<4 | int64(hexValue(c))
	}
	cl.valid = true
	return cl
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return c - 'A' + 10
}

type requestLine struct {
	method   []byte
	uri      []byte
	protocol []byte

	leadingWhitespace bool
	methodDelimBad    bool
	uriDelimBad       bool
}

// isDelim 请求行中的分隔符
func isDelim(c byte) bool {
	return c == ' ' || c == '\t' || c == '\v' || c == '\f' || c == '\r'
}

// delimCompliant 分隔符是否恰好为单个 SP
func delimCompliant(p []byte) bool {
	return len(p) == 1 && p[0] == ' '
}

// parseRequestLine 拆分请求行
//
// URI 中允许出现空白 只有最后一个空白之后的内容以 HTTP 开头时才视为协议
func parseRequestLine(line []byte) requestLine {
	var rl requestLine

	i := 0
	for i < len(line) && isDelim(line[i]) {
		i++
	}
	rl.leadingWhitespace = i > 0

	start := i
	for i < len(line) && !isDelim(line[i]) {
		i++
	}
	rl.method = line[start:i]

	start = i
	for i < len(line) && isDelim(line[i]) {
		i++
	}
	if i < len(line) && !delimCompliant(line[start:i]) {
		rl.methodDelimBad = true
	}

	rest := bstr.TrimRightSpace(line[i:])
	if len(rest) == 0 {
		return rl
	}

	last := -1
	for j := len(rest) - 1; j >= 0; j-- {
		if isDelim(rest[j]) {
			last = j
			break
		}
	}
	if last < 0 {
		rl.uri = rest
		return rl
	}

	if bstr.HasPrefixFold(rest[last+1:], "HTTP") {
		uriEnd := last
		for uriEnd > 0 && isDelim(rest[uriEnd-1]) {
			uriEnd--
		}
		rl.uri = rest[:uriEnd]
		rl.protocol = rest[last+1:]
		if !delimCompliant(rest[uriEnd : last+1]) {
			rl.uriDelimBad = true
		}
		if bytes.ContainsAny(rl.uri, " \t") {
			rl.uriDelimBad = true
		}
		return rl
	}

	// 最后一段不是协议 URI 在第一个空白处结束
	first := bytes.IndexAny(rest, " \t\v\f\r")
	rl.uri = rest[:first]
	j := first
	for j < len(rest) && isDelim(rest[j]) {
		j++
	}
	if !delimCompliant(rest[first:j]) {
		rl.uriDelimBad = true
	}
	rl.protocol = rest[j:]
	return rl
}

type statusLine struct {
	protocol []byte
	status   []byte
	message  []byte
}

func parseStatusLine(line []byte) statusLine {
	var sl statusLine
	t := bstr.TrimLeftSpace(line)

	i := 0
	for i < len(t) && !bstr.IsSpace(t[i]) {
		i++
	}
	sl.protocol = t[:i]
	t = bstr.TrimLeftSpace(t[i:])

	i = 0
	for i < len(t) && !bstr.IsSpace(t[i]) {
		i++
	}
	sl.status = t[:i]
	sl.message = bstr.TrimSpace(t[i:])
	return sl
}

// treatAsBody 状态行不以 HTTP 开头时按照响应体处理
func treatAsBody(line []byte) bool {
	t := bstr.TrimLeftSpace(line)
	return len(t) < 4 || !bstr.HasPrefixFold(t, "HTTP")
}

// parseHeaderLine 解析已经完成折叠拼接的单个头部行
func parseHeaderLine(line []byte, response bool) *Header {
	h := &Header{}
	if !response {
		if idx := bytes.IndexByte(line, 0); idx >= 0 {
			line = line[:idx]
			h.Flags |= flags.NullTerminated
		}
	}

	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		h.Flags |= flags.MissingColon | flags.FieldUnparseable
		h.Name = []byte{}
		h.Value = bstr.Clone(bstr.TrimSpace(line))
		return h
	}

	name := line[:colon]
	if len(name) > 0 && bstr.IsSpace(name[0]) {
		h.Flags |= flags.NameLeadingWhitespace
	}
	if len(name) > 0 && bstr.IsSpace(name[len(name)-1]) {
		h.Flags |= flags.NameTrailingWhitespace
		if response {
			h.Flags |= flags.DeformedSeparator
		}
	}
	name = bstr.TrimSpace(name)
	if len(name) == 0 {
		h.Flags |= flags.NameEmpty | flags.FieldInvalid
	}
	for _, c := range name {
		if !httpguts.IsTokenRune(rune(c)) {
			h.Flags |= flags.NameNonTokenChars | flags.FieldInvalid
			break
		}
	}

	h.Name = bstr.Clone(name)
	h.Value = bstr.Clone(bstr.TrimSpace(line[colon+1:]))
	return h
}
