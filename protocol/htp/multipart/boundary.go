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

package multipart

import (
	"bytes"
	"strings"

	"github.com/packetd/htp/internal/bstr"
)

// Flags multipart 解析过程中观察到的异常
type Flags uint32

const (
	CRLFLine Flags = 1 << iota
	LFLine
	BBoundaryLWSAfter
	BBoundaryNLWSAfter
	HasPreamble
	HasEpilogue
	SeenLastBoundary
	PartAfterLastBoundary
	PartIncomplete
	HBoundaryInvalid
	HBoundaryUnusual
	HBoundaryQuoted
	PartHeaderFolding
	PartUnknown
	PartHeaderRepeated
	PartHeaderUnknown
	PartHeaderInvalid
	CDTypeInvalid
	CDParamRepeated
	CDParamUnknown
	CDSyntaxInvalid
	NulByte
	Incomplete
	flagEnd
)

const (
	// CDInvalid Content-Disposition 相关的所有异常
	CDInvalid = CDTypeInvalid | CDParamRepeated | CDParamUnknown | CDSyntaxInvalid

	// Invalid 足以认定请求体非法的异常集合
	Invalid = PartIncomplete | HBoundaryInvalid | PartHeaderInvalid | CDInvalid | NulByte | BBoundaryNLWSAfter | Incomplete
)

var flagNames = []string{
	"CRLF_LINE",
	"LF_LINE",
	"BBOUNDARY_LWS_AFTER",
	"BBOUNDARY_NLWS_AFTER",
	"HAS_PREAMBLE",
	"HAS_EPILOGUE",
	"SEEN_LAST_BOUNDARY",
	"PART_AFTER_LAST_BOUNDARY",
	"PART_INCOMPLETE",
	"HBOUNDARY_INVALID",
	"HBOUNDARY_UNUSUAL",
	"HBOUNDARY_QUOTED",
	"PART_HEADER_FOLDING",
	"PART_UNKNOWN",
	"PART_HEADER_REPEATED",
	"PART_HEADER_UNKNOWN",
	"PART_HEADER_INVALID",
	"CD_TYPE_INVALID",
	"CD_PARAM_REPEATED",
	"CD_PARAM_UNKNOWN",
	"CD_SYNTAX_INVALID",
	"NUL_BYTE",
	"INCOMPLETE",
}

func (f Flags) Has(v Flags) bool {
	return f&v != 0
}

func (f Flags) Names() []string {
	var lst []string
	for i := 0; Flags(1)<<i < flagEnd; i++ {
		if f&(Flags(1)<<i) != 0 {
			lst = append(lst, flagNames[i])
		}
	}
	return lst
}

func (f Flags) String() string {
	return strings.Join(f.Names(), "|")
}

// maxBoundaryLen RFC 1341 规定 boundary 最长 70 字节
const maxBoundaryLen = 70

// IsMultipart 判断 Content-Type 是否为 multipart/form-data
func IsMultipart(contentType []byte) bool {
	return bstr.HasPrefixFold(bstr.TrimLeftSpace(contentType), "multipart/form-data")
}

// FindBoundary 从 Content-Type 中提取 boundary
//
// ok 为 false 表示没有找到可用的 boundary 即便 boundary 非法 (如包含大写字母)
// 只要能够提取出非空内容 仍然返回 ok 并设置对应的标记
func FindBoundary(contentType []byte) (boundary []byte, f Flags, ok bool) {
	const key = "boundary"

	pos := bstr.IndexFold(contentType, key)
	if pos < 0 {
		return nil, 0, false
	}
	if pos > 0 {
		prev := contentType[pos-1]
		if prev != ';' && prev != ',' && !bstr.IsLWS(prev) {
			f |= HBoundaryUnusual
		}
	}
	rest := contentType[pos+len(key):]

	i := 0
	for i < len(rest) && bstr.IsLWS(rest[i]) {
		i++
	}
	if i > 0 {
		f |= HBoundaryUnusual
	}
	if i >= len(rest) || rest[i] != '=' {
		return nil, f | HBoundaryInvalid, false
	}
	i++

	j := i
	for j < len(rest) && bstr.IsLWS(rest[j]) {
		j++
	}
	if j > i {
		f |= HBoundaryUnusual
	}
	i = j

	if i < len(rest) && rest[i] == '"' {
		f |= HBoundaryQuoted
		i++
		end := bytes.IndexByte(rest[i:], '"')
		if end < 0 {
			f |= HBoundaryInvalid
			boundary = rest[i:]
			i = len(rest)
		} else {
			boundary = rest[i : i+end]
			i += end + 1
		}
	} else {
		start := i
		for i < len(rest) && rest[i] != ';' && rest[i] != ',' && !bstr.IsLWS(rest[i]) {
			i++
		}
		boundary = rest[start:i]
	}

	for i < len(rest) && bstr.IsLWS(rest[i]) {
		i++
	}
	if i < len(rest) && rest[i] != ';' && rest[i] != ',' {
		f |= HBoundaryUnusual
	}
	// 只在取值之后查找重复的 boundary 参数 取值本身可能包含该关键字
	if bstr.IndexFold(rest[i:], key) >= 0 {
		f |= HBoundaryInvalid
	}

	if len(boundary) == 0 {
		return nil, f | HBoundaryInvalid, false
	}
	f |= validateBoundary(boundary)
	return append([]byte{}, boundary...), f, true
}

func validateBoundary(b []byte) Flags {
	var f Flags
	if len(b) > maxBoundaryLen {
		f |= HBoundaryInvalid
	}
	for _, c := range b {
		switch {
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-':
		case c >= 'A' && c <= 'Z':
			f |= HBoundaryInvalid
		case strings.IndexByte("'()+_,./:=? ", c) >= 0:
			f |= HBoundaryUnusual
		default:
			f |= HBoundaryInvalid
		}
	}
	return f
}
