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

// UTF8State 解码器在每个字节之后所处的状态
type UTF8State uint8

const (
	UTF8Accept UTF8State = iota
	UTF8Continue
	UTF8Reject
)

// UTF8Decoder 流式 UTF-8 解码器
//
// 与标准库 utf8.DecodeRune 不同 解码器会接受 overlong 编码并给出对应码点
// 因为攻击者常利用 overlong 形式 (如 %c0%af) 绕过检测 需要还原出真实字符
type UTF8Decoder struct {
	need   int
	seqLen int
	cp     rune
}

// Reset 重置解码器状态
func (d *UTF8Decoder) Reset() {
	d.need = 0
	d.seqLen = 0
	d.cp = 0
}

// Pending 当前序列中已经消费但尚未完成的字节数
func (d *UTF8Decoder) Pending() int {
	if d.need == 0 {
		return 0
	}
	return d.seqLen - d.need
}

// Decode 喂入一个字节
//
// 返回 UTF8Accept 时 cp 为完整码点 overlong 表示该码点使用了过长的编码
// 返回 UTF8Reject 时 retry 表示 c 本身没有被消费 调用方应当重新喂入
func (d *UTF8Decoder) Decode(c byte) (state UTF8State, cp rune, overlong, retry bool) {
	if d.need == 0 {
		switch {
		case c < 0x80:
			d.seqLen = 1
			return UTF8Accept, rune(c), false, false
		case c&0xE0 == 0xC0:
			d.need, d.seqLen, d.cp = 1, 2, rune(c&0x1F)
		case c&0xF0 == 0xE0:
			d.need, d.seqLen, d.cp = 2, 3, rune(c&0x0F)
		case c&0xF8 == 0xF0:
			d.need, d.seqLen, d.cp = 3, 4, rune(c&0x07)
		default:
			d.Reset()
			return UTF8Reject, 0, false, false
		}
		return UTF8Continue, 0, false, false
	}

	if c&0xC0 != 0x80 {
		d.Reset()
		return UTF8Reject, 0, false, true
	}

	d.cp = d.cp<<6 | rune(c&0x3F)
	d.need--
	if d.need > 0 {
		return UTF8Continue, 0, false, false
	}

	cp = d.cp
	seqLen := d.seqLen
	d.Reset()

	if (cp >= 0xD800 && cp <= 0xDFFF) || cp > 0x10FFFF {
		return UTF8Reject, 0, false, false
	}
	switch seqLen {
	case 2:
		overlong = cp < 0x80
	case 3:
		overlong = cp < 0x800
	case 4:
		overlong = cp < 0x10000
	}
	return UTF8Accept, cp, overlong, false
}
