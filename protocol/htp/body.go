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

	"github.com/pkg/errors"

	"github.com/packetd/htp/protocol/htp/decompress"
	"github.com/packetd/htp/protocol/htp/flags"
	"github.com/packetd/htp/protocol/htp/multipart"
	"github.com/packetd/htp/protocol/htp/urlencoded"
)

func (p *ConnParser) addMessageLen(c *cursor, tx *Transaction, n int) {
	if c.dir == dirRequest {
		tx.RequestMessageLen += int64(n)
		return
	}
	tx.ResponseMessageLen += int64(n)
}

func (p *ConnParser) bodyData(c *cursor, tx *Transaction, data []byte, n int) Status {
	if c.dir == dirRequest {
		return p.requestBodyData(tx, data, n)
	}
	return p.responseBodyData(tx, data, n)
}

// bodyChunkedLength 解析 chunk 长度行
func (p *ConnParser) bodyChunkedLength(c *cursor) Status {
	tx := p.cursorTx(c)
	ln, ok, st := p.readLineLF(c)
	if !ok {
		return st
	}
	p.addMessageLen(c, tx, len(ln.raw))

	response := c.dir == dirResponse
	cl := parseChunkedLength(ln.data)
	if cl.empty {
		return StatusOK
	}
	if cl.extension {
		code := LogRequestChunkExtension
		if response {
			code = LogResponseChunkExtension
		}
		p.log(tx, LogNotice, code, "chunk extension ignored")
	}

	if !cl.valid {
		tx.Flags |= flags.InvalidChunking
		if !response {
			p.log(tx, LogError, LogInvalidRequestChunkLen, "invalid chunk length %q", ln.data)
			return StatusError
		}

		// 响应方向降级为读取到连接关闭 当前行作为响应体
		p.log(tx, LogWarning, LogInvalidResponseChunkLen, "invalid chunk length %q", ln.data)
		tx.ResponseTransferCoding = CodingIdentity
		c.setState(StateBodyIdentityStreamClose)
		return p.responseBodyData(tx, ln.raw, len(ln.raw))
	}

	if cl.n == 0 {
		if response {
			tx.ResponseProgress = ProgressTrailer
		} else {
			tx.RequestProgress = ProgressTrailer
		}
		c.setState(StateHeaders)
		return StatusOK
	}
	c.chunkedLeft = cl.n
	c.setState(StateBodyChunkedData)
	return StatusOK
}

func (p *ConnParser) bodyChunkedData(c *cursor) Status {
	tx := p.cursorTx(c)
	data := c.avail()
	if len(data) == 0 {
		return StatusData
	}
	n := len(data)
	if int64(n) > c.chunkedLeft {
		n = int(c.chunkedLeft)
	}
	c.consume(n)
	c.chunkedLeft -= int64(n)
	p.addMessageLen(c, tx, n)

	if st := p.bodyData(c, tx, data[:n], n); st != StatusOK {
		return st
	}
	if c.chunkedLeft == 0 {
		c.setState(StateBodyChunkedDataEnd)
	}
	return StatusOK
}

// bodyChunkedDataEnd 消费 chunk 数据之后的换行
func (p *ConnParser) bodyChunkedDataEnd(c *cursor) Status {
	tx := p.cursorTx(c)
	data := c.avail()
	if len(data) == 0 {
		return StatusData
	}

	idx := bytes.IndexByte(data, '\n')
	n := idx + 1
	if idx < 0 {
		n = len(data)
	}
	for _, b := range data[:n] {
		if b != '\r' && b != '\n' {
			tx.Flags |= flags.InvalidChunking
			break
		}
	}
	c.consume(n)
	p.addMessageLen(c, tx, n)

	if idx < 0 {
		return StatusData
	}
	c.setState(StateBodyChunkedLength)
	return StatusOK
}

// setupRequestBody 根据请求头准备消息体解析器
func (p *ConnParser) setupRequestBody(tx *Transaction) {
	ct := tx.RequestContentType
	switch {
	case p.cfg.ParseURLEncoded && bytes.Equal(ct, []byte("application/x-www-form-urlencoded")):
		tx.urlen = urlencoded.New(&p.cfg.Decoder)

	case p.cfg.ParseMultipart && multipart.IsMultipart(ct):
		mp, err := multipart.NewFromContentType(tx.RequestHeaders.Value("content-type"), multipart.Config{
			ExtractFiles:      p.cfg.ExtractRequestFiles,
			ExtractFilesLimit: p.cfg.ExtractRequestFilesLimit,
			TmpDir:            p.cfg.TmpDir,
			FileData: func(f *multipart.File, data []byte) error {
				if data == nil {
					tx.RequestFiles = append(tx.RequestFiles, f)
				}
				return errorOf(p.runFileData(tx, f, FileSourceMultipart, data))
			},
		})
		if err != nil {
			p.log(tx, LogWarning, LogRequestMultipartInvalid, "multipart: %v", err)
			break
		}
		tx.RequestMultipart = mp
	}

	if tx.RequestMethodNumber == MethodPUT && tx.RequestTransferCoding != CodingNoBody {
		tx.putFile = &multipart.File{}
		if p.cfg.ExtractRequestFiles {
			if err := tx.putFile.CreateTemp(p.cfg.TmpDir); err != nil {
				p.log(tx, LogWarning, LogPutFileError, "put file: %v", err)
			}
		}
	}

	if p.cfg.RequestDecompression {
		tx.RequestContentEncoding, tx.reqChain = p.newChain(tx, tx.RequestHeaders.Value("content-encoding"), p.deliverRequestBody)
	}
}

// setupResponseDecompression 根据 Content-Encoding 建立解压链
func (p *ConnParser) setupResponseDecompression(tx *Transaction) Status {
	if !p.cfg.ResponseDecompression || tx.ResponseTransferCoding == CodingNoBody {
		return StatusOK
	}
	tx.ResponseContentEncoding, tx.resChain = p.newChain(tx, tx.ResponseHeaders.Value("content-encoding"), p.deliverResponseBody)
	return StatusOK
}

func (p *ConnParser) newChain(tx *Transaction, ce []byte, deliver func(*Transaction, []byte, int, bool) Status) ([]decompress.Encoding, *decompress.Chain) {
	if len(ce) == 0 {
		return nil, nil
	}
	encodings := decompress.ParseEncodings(ce)
	if len(encodings) == 0 {
		return nil, nil
	}

	sink := func(b []byte) error {
		return errorOf(deliver(tx, b, len(b), false))
	}
	chain, truncated, err := decompress.NewChain(encodings, p.cfg.decompressLimits(), sink)
	if err != nil {
		p.log(tx, LogWarning, LogInvalidContentEncoding, "content encoding %q: %v", ce, err)
		return encodings, nil
	}
	if truncated {
		p.log(tx, LogWarning, LogTooManyEncodingLayers, "too many content encoding layers %q", ce)
	}
	if len(encodings) > 1 {
		p.log(tx, LogNotice, LogAbnormalCEHeader, "multiple content encodings %q", ce)
	}
	return chain.Encodings(), chain
}

func (p *ConnParser) requestBodyData(tx *Transaction, data []byte, n int) Status {
	tx.RequestEntityLen += int64(n)
	if data == nil {
		if tx.reqChain != nil {
			p.dropChain(tx, &tx.reqChain, errors.New("gap in compressed body"))
		}
		return p.deliverRequestBody(tx, nil, n, false)
	}
	if tx.reqChain != nil {
		return p.decompressResult(tx, &tx.reqChain, tx.reqChain.Decompress(data), data, p.deliverRequestBody)
	}
	return p.deliverRequestBody(tx, data, n, false)
}

func (p *ConnParser) responseBodyData(tx *Transaction, data []byte, n int) Status {
	tx.ResponseEntityLen += int64(n)
	if data == nil {
		if tx.resChain != nil {
			p.dropChain(tx, &tx.resChain, errors.New("gap in compressed body"))
		}
		return p.deliverResponseBody(tx, nil, n, false)
	}
	if tx.resChain != nil {
		return p.decompressResult(tx, &tx.resChain, tx.resChain.Decompress(data), data, p.deliverResponseBody)
	}
	return p.deliverResponseBody(tx, data, n, false)
}

// decompressResult 防护类错误终止解析 其余解压错误降级为透传原始数据
func (p *ConnParser) decompressResult(tx *Transaction, chain **decompress.Chain, err error, raw []byte, deliver func(*Transaction, []byte, int, bool) Status) Status {
	if err == nil {
		return StatusOK
	}
	var se statusError
	if errors.As(err, &se) {
		return se.st
	}
	if errors.Is(err, decompress.ErrBomb) || errors.Is(err, decompress.ErrTimeLimit) {
		p.log(tx, LogError, LogCompressionBomb, "compression bomb: %v", err)
		return StatusError
	}

	p.dropChain(tx, chain, err)
	if raw == nil {
		return StatusOK
	}
	return deliver(tx, raw, len(raw), false)
}

func (p *ConnParser) dropChain(tx *Transaction, chain **decompress.Chain, cause error) {
	p.log(tx, LogWarning, LogGzipDecompressionFailed, "decompression failed: %v", cause)
	_ = (*chain).Close()
	*chain = nil
}

func (p *ConnParser) requestBodyLast(tx *Transaction) Status {
	if tx.reqChain != nil {
		if st := p.decompressResult(tx, &tx.reqChain, tx.reqChain.Finish(), nil, p.deliverRequestBody); st != StatusOK {
			return st
		}
	}
	return p.deliverRequestBody(tx, nil, 0, true)
}

func (p *ConnParser) responseBodyLast(tx *Transaction) Status {
	if tx.resChain != nil {
		if st := p.decompressResult(tx, &tx.resChain, tx.resChain.Finish(), nil, p.deliverResponseBody); st != StatusOK {
			return st
		}
	}
	return p.deliverResponseBody(tx, nil, 0, true)
}

// deliverRequestBody 把 (解压之后的) 请求体交给回调以及内置的消息体解析器
func (p *ConnParser) deliverRequestBody(tx *Transaction, data []byte, n int, last bool) Status {
	if data != nil || n > 0 || last {
		d := &Data{Tx: tx, Data: data, Len: n, IsLast: last}
		if st := statusOf(p.cfg.Hooks.RequestBodyData.Run(d)); st != StatusOK {
			return st
		}
	}

	if tx.urlen != nil {
		if last {
			tx.urlen.Finalize()
			tx.addParams(tx.urlen.Params(), ParamSourceBody)
			tx.Flags |= tx.urlen.Flags()
			tx.urlen = nil
		} else if data != nil {
			tx.urlen.Parse(data)
		}
	}

	if mp := tx.RequestMultipart; mp != nil {
		var err error
		switch {
		case last:
			err = mp.Finalize()
			p.collectMultipart(tx)
		case data != nil:
			err = mp.Parse(data)
		}
		if err != nil {
			var se statusError
			if errors.As(err, &se) {
				return se.st
			}
			p.log(tx, LogWarning, LogRequestBodyDataCallbackError, "multipart: %v", err)
		}
	}

	if data != nil || last {
		return p.putFileData(tx, data)
	}
	return StatusOK
}

// collectMultipart 文本类型 part 作为请求参数
func (p *ConnParser) collectMultipart(tx *Transaction) {
	mp := tx.RequestMultipart
	for _, part := range mp.Parts() {
		if part.Type != multipart.PartTypeText {
			continue
		}
		tx.RequestParams = append(tx.RequestParams, Param{
			Name:   part.Name,
			Value:  part.Value,
			Source: ParamSourceBody,
		})
	}
	if mp.Flags()&multipart.Invalid != 0 {
		p.log(tx, LogWarning, LogRequestMultipartInvalid, "multipart body invalid: %s", mp.Flags())
	}
}

func (p *ConnParser) deliverResponseBody(tx *Transaction, data []byte, n int, last bool) Status {
	d := &Data{Tx: tx, Data: data, Len: n, IsLast: last}
	return statusOf(p.cfg.Hooks.ResponseBodyData.Run(d))
}
