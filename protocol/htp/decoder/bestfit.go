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

package decoder

import (
	"sync"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// BestFitMap 将 BMP 内的码点映射为单字节
//
// 值为 0 表示没有合适的映射 (码点 0 除外)
type BestFitMap [65536]byte

// Lookup 查找 cp 对应的单字节 无映射时返回 repl
func (m *BestFitMap) Lookup(cp rune, repl byte) byte {
	if cp >= 0 && cp < 0x80 {
		return byte(cp)
	}
	if cp < 0 || cp > 0xFFFF {
		return repl
	}
	if b := m[cp]; b != 0 {
		return b
	}
	return repl
}

// 无法通过兼容分解得到的常见替代字符
var bestFitExtra = map[rune]byte{
	0x2044: '/',
	0x2215: '/',
	0x2216: '\\',
	0x29F5: '\\',
	0x2039: '<',
	0x203A: '>',
	0x2018: '\'',
	0x2019: '\'',
	0x2032: '\'',
	0x201C: '"',
	0x201D: '"',
	0x02C6: '^',
	0x02DC: '~',
	0x00AB: '"',
	0x00BB: '"',
}

var (
	bestFitOnce sync.Once
	bestFitMap  *BestFitMap
)

// DefaultBestFitMap 返回全局只读的映射表 首次调用时构建
func DefaultBestFitMap() *BestFitMap {
	bestFitOnce.Do(func() {
		bestFitMap = newBestFitMap()
	})
	return bestFitMap
}

func newBestFitMap() *BestFitMap {
	m := new(BestFitMap)
	for cp := 0; cp < 0x80; cp++ {
		m[cp] = byte(cp)
	}
	for cp := 0x80; cp <= 0xFFFF; cp++ {
		if cp >= 0xD800 && cp <= 0xDFFF {
			continue
		}
		m[cp] = bestFitRune(rune(cp))
	}
	return m
}

// bestFitRune 依次尝试 全角/半角折叠 -> 兼容分解 -> 补充表
func bestFitRune(r rune) byte {
	if b, ok := bestFitExtra[r]; ok {
		return b
	}

	s := string(r)
	if folded := width.Fold.String(s); folded != s {
		if b, ok := asciiHead(folded); ok {
			return b
		}
	}
	if b, ok := asciiHead(norm.NFKD.String(s)); ok {
		return b
	}
	return 0
}

func asciiHead(s string) (byte, bool) {
	if len(s) == 0 {
		return 0, false
	}
	c := s[0]
	if c == 0 || c >= 0x80 {
		return 0, false
	}
	return c, true
}
