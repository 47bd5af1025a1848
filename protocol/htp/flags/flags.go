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

package flags

import (
	"strings"
)

// Flags 记录解析过程中观察到的各类异常
//
// 同一个 Flags 类型同时用于 Header / URI / Transaction
// Header 与 URI 上的异常会合并到所属的 Transaction 上
type Flags uint64

const (
	FieldUnparseable Flags = 1 << iota
	FieldInvalid
	FieldFolded
	FieldRepeated
	FieldLong
	FieldRawNul
	RequestSmuggling
	InvalidFolding
	RequestInvalidTE
	HostMissing
	HostAmbiguous
	PathEncodedNul
	PathRawNul
	PathInvalidEncoding
	PathInvalid
	PathOverlongU
	PathEncodedSeparator
	PathUTF8Valid
	PathUTF8Invalid
	PathUTF8Overlong
	PathHalfFullRange
	StatusLineInvalid
	HostUInvalid
	HostHInvalid
	URLEnEncodedNul
	URLEnInvalidEncoding
	URLEnOverlongU
	URLEnHalfFullRange
	URLEnRawNul
	RequestInvalid
	RequestInvalidCL
	AuthInvalid
	MissingColon
	NullTerminated
	DeformedEOL
	DeformedSeparator
	NameLeadingWhitespace
	NameTrailingWhitespace
	NameNonTokenChars
	NameEmpty
	FoldingEmpty
	FoldingSpecialCase
	InvalidChunking
	ResponseInvalidCL
	ResponseUnexpectedBody
	ProtocolExtraData
	flagEnd
)

// HostInvalid URI 或 Host 头中的 hostname 非法
const HostInvalid = HostUInvalid | HostHInvalid

var names = []string{
	"FIELD_UNPARSEABLE",
	"FIELD_INVALID",
	"FIELD_FOLDED",
	"FIELD_REPEATED",
	"FIELD_LONG",
	"FIELD_RAW_NUL",
	"REQUEST_SMUGGLING",
	"INVALID_FOLDING",
	"REQUEST_INVALID_T_E",
	"HOST_MISSING",
	"HOST_AMBIGUOUS",
	"PATH_ENCODED_NUL",
	"PATH_RAW_NUL",
	"PATH_INVALID_ENCODING",
	"PATH_INVALID",
	"PATH_OVERLONG_U",
	"PATH_ENCODED_SEPARATOR",
	"PATH_UTF8_VALID",
	"PATH_UTF8_INVALID",
	"PATH_UTF8_OVERLONG",
	"PATH_HALF_FULL_RANGE",
	"STATUS_LINE_INVALID",
	"HOSTU_INVALID",
	"HOSTH_INVALID",
	"URLEN_ENCODED_NUL",
	"URLEN_INVALID_ENCODING",
	"URLEN_OVERLONG_U",
	"URLEN_HALF_FULL_RANGE",
	"URLEN_RAW_NUL",
	"REQUEST_INVALID",
	"REQUEST_INVALID_C_L",
	"AUTH_INVALID",
	"MISSING_COLON",
	"NULL_TERMINATED",
	"DEFORMED_EOL",
	"DEFORMED_SEPARATOR",
	"NAME_LEADING_WHITESPACE",
	"NAME_TRAILING_WHITESPACE",
	"NAME_NON_TOKEN_CHARS",
	"NAME_EMPTY",
	"FOLDING_EMPTY",
	"FOLDING_SPECIAL_CASE",
	"INVALID_CHUNKING",
	"RESPONSE_INVALID_C_L",
	"RESPONSE_UNEXPECTED_BODY",
	"PROTOCOL_EXTRA_DATA",
}

// Set 设置标记位
func (f *Flags) Set(v Flags) {
	*f |= v
}

// Unset 清除标记位
func (f *Flags) Unset(v Flags) {
	*f &^= v
}

// Has 判断是否包含 v 中的任意标记位
func (f Flags) Has(v Flags) bool {
	return f&v != 0
}

// Names 返回所有已设置标记的名称 顺序与定义一致
func (f Flags) Names() []string {
	var lst []string
	for i := 0; Flags(1)<<i < flagEnd; i++ {
		if f&(Flags(1)<<i) != 0 {
			lst = append(lst, names[i])
		}
	}
	return lst
}

func (f Flags) String() string {
	return strings.Join(f.Names(), "|")
}

// ConnFlags 连接级别的标记
type ConnFlags uint8

const (
	ConnPipelined ConnFlags = 1 << iota
	ConnHTTP09Extra
)

func (f ConnFlags) Has(v ConnFlags) bool {
	return f&v != 0
}

func (f ConnFlags) Names() []string {
	var lst []string
	if f.Has(ConnPipelined) {
		lst = append(lst, "PIPELINED")
	}
	if f.Has(ConnHTTP09Extra) {
		lst = append(lst, "HTTP_0_9_EXTRA")
	}
	return lst
}
