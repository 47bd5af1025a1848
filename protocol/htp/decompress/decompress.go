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

package decompress

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz/lzma"

	"github.com/packetd/htp/internal/bstr"
)

// Encoding Content-Encoding 中识别出的编码
type Encoding uint8

const (
	EncodingNone Encoding = iota
	EncodingGzip
	EncodingDeflate
	EncodingLzma
	EncodingBrotli
	EncodingUnknown
)

func (e Encoding) String() string {
	switch e {
	case EncodingGzip:
		return "gzip"
	case EncodingDeflate:
		return "deflate"
	case EncodingLzma:
		return "lzma"
	case EncodingBrotli:
		return "br"
	case EncodingUnknown:
		return "unknown"
	}
	return "none"
}

// ParseEncodings 解析 Content-Encoding 头部
//
// 按出现顺序返回所有编码 名称忽略大小写 包含 gzip/deflate/lzma/inflate 子串即可识别
// identity 与空项被忽略 无法识别的编码以 EncodingUnknown 表示
func ParseEncodings(value []byte) []Encoding {
	var lst []Encoding
	for len(value) > 0 {
		var token []byte
		idx := -1
		for i, c := range value {
			if c == ',' || bstr.IsLWS(c) {
				idx = i
				break
			}
		}
		if idx < 0 {
			token, value = value, nil
		} else {
			token, value = value[:idx], value[idx+1:]
		}
		if len(token) == 0 {
			continue
		}
		lst = append(lst, encodingOf(token))
	}

	out := lst[:0]
	for _, e := range lst {
		if e != EncodingNone {
			out = append(out, e)
		}
	}
	return out
}

func encodingOf(token []byte) Encoding {
	switch {
	case bstr.IndexFold(token, "gzip") >= 0:
		return EncodingGzip
	case bstr.IndexFold(token, "deflate") >= 0, bstr.IndexFold(token, "inflate") >= 0:
		return EncodingDeflate
	case bstr.IndexFold(token, "lzma") >= 0:
		return EncodingLzma
	case bstr.EqualFold(token, "br"):
		return EncodingBrotli
	case bstr.EqualFold(token, "identity"), bstr.EqualFold(token, "none"):
		return EncodingNone
	}
	return EncodingUnknown
}

// Options 单层解压器的选项
type Options struct {
	LzmaMemLimit int
}

// New 创建对应编码的解压器
func New(enc Encoding, opts Options, sink Sink) (Decompressor, error) {
	switch enc {
	case EncodingGzip:
		return newPump("gzip", newGzipReader, sink), nil
	case EncodingDeflate:
		return newPump("deflate", newDeflateReader, sink), nil
	case EncodingLzma:
		return newPump("lzma", lzmaFactory(opts.LzmaMemLimit), sink), nil
	case EncodingBrotli:
		return newPump("br", newBrotliReader, sink), nil
	}
	return nil, errors.Errorf("decompress: unsupported encoding %s", enc)
}

func newGzipReader(r io.Reader) (io.Reader, error) {
	return gzip.NewReader(r)
}

// newDeflateReader 兼容 zlib 封装与原始 deflate 两种格式
func newDeflateReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil && len(head) < 2 {
		return flate.NewReader(br), nil
	}
	if isZlibHeader(head[0], head[1]) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0F == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// lzmaFactory memLimit 限制头部声明的字典大小 超过时拒绝解压
func lzmaFactory(memLimit int) readerFactory {
	return func(r io.Reader) (io.Reader, error) {
		br := bufio.NewReader(r)
		if memLimit > 0 {
			head, err := br.Peek(5)
			if err != nil {
				return nil, err
			}
			dictSize := binary.LittleEndian.Uint32(head[1:5])
			if int64(dictSize) > int64(memLimit) {
				return nil, errors.Errorf("lzma dictionary size %d exceeds limit %d", dictSize, memLimit)
			}
		}
		return lzma.NewReader(br)
	}
}

func newBrotliReader(r io.Reader) (io.Reader, error) {
	return brotli.NewReader(r), nil
}
