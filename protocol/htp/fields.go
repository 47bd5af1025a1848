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

	"github.com/packetd/htp/internal/bstr"
	"github.com/packetd/htp/protocol/htp/flags"
)

// parseHeaders 逐行解析头部块 (包括 trailer) 直到遇到空行
//
// 返回 true 表示头部块已经结束
func (p *ConnParser) parseHeaders(c *cursor, tx *Transaction) (bool, Status) {
	response := c.dir == dirResponse
	for {
		ln, ok, st := p.readLine(c)
		if !ok {
			if st == StatusData && c.closed() {
				if fst := p.flushHeader(c, tx); fst != StatusOK {
					return false, fst
				}
			}
			return false, st
		}
		if st := p.runHeaderData(c, tx, ln.raw); st != StatusOK {
			return false, st
		}

		data := ln.data
		if !response && len(data) > 0 && data[len(data)-1] == '\r' {
			p.log(tx, LogError, LogRequestHeaderInvalid, "request header line terminated by CR CR LF")
			return false, StatusError
		}

		fold := c.foldNext
		c.foldNext = ln.fold

		if len(data) == 0 && !fold {
			if st := p.flushHeader(c, tx); st != StatusOK {
				return false, st
			}
			if ln.eol == eolNone {
				return false, StatusData
			}
			return true, StatusOK
		}

		if fold || bstr.IsLWS(data[0]) {
			if st := p.foldHeader(c, tx, data); st != StatusOK {
				return false, st
			}
		} else {
			if st := p.flushHeader(c, tx); st != StatusOK {
				return false, st
			}
			c.header = &pendingHeader{data: bstr.Clone(data)}
			if response && bytes.IndexByte(data, ':') < 0 {
				c.header.flags |= flags.MissingColon
			}
		}

		if c.header == nil {
			continue
		}
		if ln.eol.deformed() {
			c.header.flags |= flags.DeformedEOL
		}
		if ln.fold {
			c.header.flags |= flags.FoldingSpecialCase
		}
		if len(c.header.data) > p.cfg.FieldLimit {
			code := LogRequestFieldTooLong
			if response {
				code = LogResponseFieldTooLong
			}
			p.log(tx, LogError, code, "header length exceeds limit %d", p.cfg.FieldLimit)
			return false, StatusError
		}
	}
}

// foldHeader 处理以空白开头的续行
func (p *ConnParser) foldHeader(c *cursor, tx *Transaction, data []byte) Status {
	trimmed := bstr.TrimSpace(data)
	if len(trimmed) == 0 {
		tx.Flags |= flags.FoldingEmpty
		if c.header != nil {
			c.header.flags |= flags.FoldingEmpty
		}
		return StatusOK
	}

	switch {
	case c.header == nil:
		tx.Flags |= flags.InvalidFolding
		code := LogInvalidRequestFieldFolding
		if c.dir == dirResponse {
			code = LogInvalidResponseFieldFolding
		}
		p.log(tx, LogWarning, code, "invalid header folding")
		c.header = &pendingHeader{data: bstr.Clone(trimmed), flags: flags.InvalidFolding}

	case c.dir == dirResponse && c.header.flags.Has(flags.MissingColon) && trimmed[0] == ':':
		// 名称与冒号之间出现了换行
		c.header.data = append(c.header.data, trimmed...)
		c.header.flags &^= flags.MissingColon
		c.header.flags |= flags.DeformedSeparator

	default:
		c.header.data = append(c.header.data, ' ')
		c.header.data = append(c.header.data, trimmed...)
		c.header.flags |= flags.FieldFolded
	}
	return StatusOK
}

// flushHeader 解析等待中的头部并加入头部表
func (p *ConnParser) flushHeader(c *cursor, tx *Transaction) Status {
	if c.header == nil {
		return StatusOK
	}
	pending := c.header
	c.header = nil

	response := c.dir == dirResponse
	h := parseHeaderLine(pending.data, response)
	h.Flags |= pending.flags &^ flags.MissingColon
	tx.Flags |= h.Flags

	type check struct {
		flag     flags.Flags
		req, res LogCode
		level    LogLevel
	}
	checks := []check{
		{flags.MissingColon, LogRequestFieldMissingColon, LogResponseFieldMissingColon, LogWarning},
		{flags.NameEmpty, LogRequestInvalidEmptyName, LogResponseInvalidEmptyName, LogWarning},
		{flags.NameTrailingWhitespace, LogRequestInvalidLWSAfterName, LogResponseInvalidLWSAfterName, LogWarning},
		{flags.NameNonTokenChars, LogRequestHeaderNameNotToken, LogResponseHeaderNameNotToken, LogWarning},
		{flags.NullTerminated, LogRequestFieldNulTerminated, LogRequestFieldNulTerminated, LogWarning},
		{flags.DeformedEOL, LogDeformedEOL, LogDeformedEOL, LogNotice},
	}
	for _, chk := range checks {
		if !h.Flags.Has(chk.flag) {
			continue
		}
		code := chk.req
		if response {
			code = chk.res
		}
		p.log(tx, chk.level, code, "header %q: %s", h.Name, chk.flag)
	}

	headers := tx.RequestHeaders
	repetition, duplicateCL := LogRequestHeaderRepetition, LogDuplicateContentLengthFieldInRequest
	if response {
		headers = tx.ResponseHeaders
		repetition, duplicateCL = LogResponseHeaderRepetition, LogDuplicateContentLengthFieldInResponse
	}

	switch headers.add(h) {
	case headerMerged:
		tx.Flags |= flags.FieldRepeated
		p.log(tx, LogWarning, repetition, "repetition for header %q", h.Name)
	case headerDuplicateCL:
		tx.Flags |= flags.RequestSmuggling
		p.log(tx, LogWarning, duplicateCL, "duplicate Content-Length header")
	}
	return StatusOK
}

// runHeaderData 原始头部数据回调 trailer 阶段使用 trailer 回调
func (p *ConnParser) runHeaderData(c *cursor, tx *Transaction, raw []byte) Status {
	hooks := p.cfg.Hooks
	var h *Hook[*Data]
	if c.dir == dirRequest {
		h = &hooks.RequestHeaderData
		if tx.RequestProgress == ProgressTrailer {
			h = &hooks.RequestTrailerData
		}
	} else {
		h = &hooks.ResponseHeaderData
		if tx.ResponseProgress == ProgressTrailer {
			h = &hooks.ResponseTrailerData
		}
	}
	if h.Len() == 0 {
		return StatusOK
	}
	return statusOf(h.Run(&Data{Tx: tx, Data: raw, Len: len(raw)}))
}
