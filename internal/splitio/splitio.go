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

// Package splitio 把一段载荷切分成多个数据块 切分结果引用原始数据不做拷贝
//
// 用于模拟数据在网络上被任意分段的场景
package splitio

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	CharCRLF = []byte("\r\n")
	CharLF   = []byte("\n")
)

// Mode 切分方式
type Mode struct {
	lines bool
	size  int
}

var (
	// ModeNone 不切分
	ModeNone = Mode{}

	// ModeLines 按 LF 切分 保留换行符
	ModeLines = Mode{lines: true}
)

// ModeSize 按固定长度切分
func ModeSize(n int) Mode {
	return Mode{size: n}
}

func (m Mode) String() string {
	switch {
	case m.lines:
		return "lines"
	case m.size > 0:
		return strconv.Itoa(m.size)
	}
	return "none"
}

// ParseMode 解析 none / lines / 正整数 三种写法
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ModeNone, nil
	case "lines":
		return ModeLines, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return ModeNone, errors.Errorf("invalid split mode (%s)", s)
	}
	return ModeSize(n), nil
}

// Scanner 依次返回切分后的数据块
type Scanner struct {
	mode Mode
	l, r int
	buf  []byte
}

func NewScanner(b []byte, mode Mode) *Scanner {
	return &Scanner{
		mode: mode,
		buf:  b,
	}
}

// Scan 定位下一个数据块 没有剩余数据时返回 false
func (s *Scanner) Scan() bool {
	s.l = s.r
	if len(s.buf) == s.l {
		return false
	}

	switch {
	case s.mode.lines:
		idx := bytes.IndexByte(s.buf[s.l:], CharLF[0])
		if idx == -1 {
			s.r = len(s.buf)
		} else {
			s.r = s.l + idx + 1
		}
	case s.mode.size > 0:
		s.r = min(s.l+s.mode.size, len(s.buf))
	default:
		s.r = len(s.buf)
	}
	return true
}

// Bytes 返回当前数据块 如有修改需求 请拷贝一份
func (s *Scanner) Bytes() []byte {
	return s.buf[s.l:s.r]
}

// Offset 返回当前数据块在原始数据中的起始位置
func (s *Scanner) Offset() int {
	return s.l
}

// Split 返回全部数据块
func Split(b []byte, mode Mode) [][]byte {
	var chunks [][]byte
	s := NewScanner(b, mode)
	for s.Scan() {
		chunks = append(chunks, s.Bytes())
	}
	return chunks
}
