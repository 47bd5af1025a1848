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

package bstr

import (
	"bytes"
)

// Bytes 带容量上限的字节容器
//
// 通过 Wrap 创建的实例引用外部内存 不允许增长
type Bytes struct {
	size    int
	buf     []byte
	wrapped bool
}

// New 创建容量上限为 size 的 Bytes 实例 size <= 0 表示不限制
func New(size int) *Bytes {
	return &Bytes{
		size: size,
	}
}

// Wrap 引用外部内存 调用方需保证 p 在使用期间不被修改
func Wrap(p []byte) *Bytes {
	return &Bytes{
		size:    len(p),
		buf:     p,
		wrapped: true,
	}
}

// Write 追加数据 超出容量的部分会被截断 返回实际写入的字节数
func (b *Bytes) Write(p []byte) int {
	if b.wrapped {
		return 0
	}
	if b.size <= 0 {
		b.buf = append(b.buf, p...)
		return len(p)
	}

	n := (b.size - len(b.buf)) - len(p)
	if n >= 0 {
		b.buf = append(b.buf, p...)
		return len(p)
	}

	l := b.size - len(b.buf)
	if l > 0 {
		b.buf = append(b.buf, p[:l]...)
		return l
	}
	return 0
}

func (b *Bytes) WriteByte(c byte) error {
	b.Write([]byte{c})
	return nil
}

func (b *Bytes) Len() int {
	return len(b.buf)
}

// Full 是否已经达到容量上限
func (b *Bytes) Full() bool {
	return b.size > 0 && len(b.buf) >= b.size
}

// Bytes 返回底层数据 如有修改需求 请拷贝一份
func (b *Bytes) Bytes() []byte {
	return b.buf
}

func (b *Bytes) Text() string {
	return string(b.buf)
}

func (b *Bytes) Clone() []byte {
	if b.buf == nil {
		return nil
	}
	return append([]byte{}, b.buf...)
}

func (b *Bytes) Reset() {
	if b.wrapped {
		b.buf = nil
		b.wrapped = false
		b.size = 0
		return
	}
	b.buf = b.buf[:0]
}

// EqualFold 判断两者是否相等 忽略 ASCII 大小写
func (b *Bytes) EqualFold(s string) bool {
	return EqualFold(b.buf, s)
}

// ToLower 原地转换为小写
func (b *Bytes) ToLower() {
	if b.wrapped {
		return
	}
	ToLower(b.buf)
}

// Index 查找 s 第一次出现的位置 忽略大小写
func (b *Bytes) Index(s string) int {
	return IndexFold(b.buf, s)
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// EqualFold 判断 p 与 s 是否相等 仅折叠 ASCII 大小写
func EqualFold(p []byte, s string) bool {
	if len(p) != len(s) {
		return false
	}
	for i := 0; i < len(p); i++ {
		if lower(p[i]) != lower(s[i]) {
			return false
		}
	}
	return true
}

// HasPrefixFold 判断 p 是否以 prefix 开头 忽略大小写
func HasPrefixFold(p []byte, prefix string) bool {
	if len(p) < len(prefix) {
		return false
	}
	return EqualFold(p[:len(prefix)], prefix)
}

// IndexFold 返回 needle 在 p 中第一次出现的位置 不存在时返回 -1
func IndexFold(p []byte, needle string) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(p); i++ {
		if lower(p[i]) != lower(needle[0]) {
			continue
		}
		if EqualFold(p[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

// CountFold 统计 needle 在 p 中出现的次数 忽略大小写
func CountFold(p []byte, needle string) int {
	var n int
	for {
		idx := IndexFold(p, needle)
		if idx < 0 || len(needle) == 0 {
			return n
		}
		n++
		p = p[idx+len(needle):]
	}
}

// ToLower 原地转换 ASCII 大写字母
func ToLower(p []byte) {
	for i := 0; i < len(p); i++ {
		p[i] = lower(p[i])
	}
}

// HasUpper 是否包含 ASCII 大写字母
func HasUpper(p []byte) bool {
	for _, c := range p {
		if c >= 'A' && c <= 'Z' {
			return true
		}
	}
	return false
}

// IsSpace 是否为 HTTP 语境下的空白字符 (SP HT CR LF VT FF)
func IsSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	}
	return false
}

// IsLWS 是否为线性空白 (SP HT)
func IsLWS(c byte) bool {
	return c == ' ' || c == '\t'
}

// TrimSpace 去除首尾空白 返回的切片引用原始内存
func TrimSpace(p []byte) []byte {
	return TrimRightSpace(TrimLeftSpace(p))
}

func TrimLeftSpace(p []byte) []byte {
	i := 0
	for i < len(p) && IsSpace(p[i]) {
		i++
	}
	return p[i:]
}

func TrimRightSpace(p []byte) []byte {
	i := len(p)
	for i > 0 && IsSpace(p[i-1]) {
		i--
	}
	return p[:i]
}

// Chomp 去除结尾的换行符 (CR 与 LF 的任意组合)
func Chomp(p []byte) []byte {
	for len(p) > 0 && (p[len(p)-1] == '\n' || p[len(p)-1] == '\r') {
		p = p[:len(p)-1]
	}
	return p
}

// Clone 拷贝 p 空切片保持为空切片而非 nil
func Clone(p []byte) []byte {
	if p == nil {
		return nil
	}
	return bytes.Clone(p)
}
