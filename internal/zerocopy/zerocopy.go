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

// Package zerocopy 在 TCP 重组与解析器之间传递载荷 全程不拷贝字节
//
// 调用方不能修改读取到的任何字节 且只能在回调期间持有
package zerocopy

import (
	"io"
)

// Reader 按需读取当前数据块
type Reader interface {
	// Read 读取至多 n 字节 数据耗尽后返回 io.EOF
	Read(n int) ([]byte, error)

	// Len 返回尚未读取的字节数
	Len() int
}

// Buffer 可以反复装载新数据块的 Reader
type Buffer interface {
	Reader

	// Reset 装载新的数据块并重置读位置
	Reset(p []byte)

	// Close 丢弃剩余数据 之后的 Read 返回 io.EOF
	Close()
}

type buffer struct {
	r int
	b []byte
}

func NewBuffer(p []byte) Buffer {
	return &buffer{b: p}
}

func (buf *buffer) Len() int {
	return len(buf.b) - buf.r
}

func (buf *buffer) Read(n int) ([]byte, error) {
	remain := buf.Len()
	if remain == 0 {
		return nil, io.EOF
	}
	if n <= 0 {
		return nil, nil
	}
	if n > remain {
		n = remain
	}

	b := buf.b[buf.r : buf.r+n]
	buf.r += n
	return b, nil
}

func (buf *buffer) Reset(p []byte) {
	buf.b = p
	buf.r = 0
}

func (buf *buffer) Close() {
	buf.r = len(buf.b)
}
