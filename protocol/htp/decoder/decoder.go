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
	"github.com/packetd/htp/protocol/htp/flags"
)

// flagSet 路径与 urlencoded 两种场景下使用不同的标记
type flagSet struct {
	encodedNul      flags.Flags
	rawNul          flags.Flags
	invalidEncoding flags.Flags
	overlongU       flags.Flags
	halfFullRange   flags.Flags
}

var (
	pathFlags = flagSet{
		encodedNul:      flags.PathEncodedNul,
		rawNul:          flags.PathRawNul,
		invalidEncoding: flags.PathInvalidEncoding,
		overlongU:       flags.PathOverlongU,
		halfFullRange:   flags.PathHalfFullRange,
	}
	urlenFlags = flagSet{
		encodedNul:      flags.URLEnEncodedNul,
		rawNul:          flags.URLEnRawNul,
		invalidEncoding: flags.URLEnInvalidEncoding,
		overlongU:       flags.URLEnOverlongU,
		halfFullRange:   flags.URLEnHalfFullRange,
	}
)

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// hexValue 非十六进制字符同样参与计算 用于 ProcessInvalid 模式
func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return (c & 0xDF) - 'A' + 10
}

func x2c(p []byte) byte {
	return hexValue(p[0])<<4 | hexValue(p[1])
}

func allHex(p []byte) bool {
	for _, c := range p {
		if !isHex(c) {
			return false
		}
	}
	return true
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// decodeState 单次解码的上下文
type decodeState struct {
	cfg    *Config
	fs     flagSet
	path   bool
	flags  flags.Flags
	status int
}

func (s *decodeState) set(f flags.Flags, status int) {
	s.flags |= f
	if status != 0 {
		s.status = status
	}
}

// decodeU 解码 %uHHHH 形式 返回消费的字节数 0 表示不匹配
func (s *decodeState) decodeU(in []byte) (byte, int, bool) {
	if len(in) >= 6 && allHex(in[2:6]) {
		cp := rune(x2c(in[2:4]))<<8 | rune(x2c(in[4:6]))
		s.set(s.fs.overlongU, s.cfg.UEncodingUnwanted)
		if cp >= 0xFF00 && cp <= 0xFFEF {
			s.set(s.fs.halfFullRange, s.cfg.UEncodingUnwanted)
		}
		return s.cfg.bestFit(cp), 6, true
	}

	s.set(s.fs.invalidEncoding, s.cfg.URLEncodingInvalidUnwanted)
	if s.cfg.URLEncodingInvalidHandling == ProcessInvalid && len(in) >= 6 {
		return x2c(in[4:6]), 6, true
	}
	return 0, 0, false
}

func (s *decodeState) run(in []byte) []byte {
	cfg := s.cfg
	out := make([]byte, 0, len(in))

	for i := 0; i < len(in); {
		c := in[i]
		encoded := false
		raw := in[i : i+1]

		switch {
		case c == '%' && i+1 < len(in) && (in[i+1] == 'u' || in[i+1] == 'U') && cfg.UEncodingDecode:
			b, n, ok := s.decodeU(in[i:])
			if !ok {
				if cfg.URLEncodingInvalidHandling != RemovePercent {
					out = append(out, '%')
				}
				i++
				continue
			}
			c, raw, encoded = b, in[i:i+n], true
			i += n

		case c == '%':
			if i+2 < len(in) && isHex(in[i+1]) && isHex(in[i+2]) {
				c, raw, encoded = x2c(in[i+1:]), in[i:i+3], true
				i += 3
				break
			}

			s.set(s.fs.invalidEncoding, cfg.URLEncodingInvalidUnwanted)
			if cfg.URLEncodingInvalidHandling == ProcessInvalid && i+2 < len(in) {
				c, raw, encoded = x2c(in[i+1:]), in[i:i+3], true
				i += 3
				break
			}
			if cfg.URLEncodingInvalidHandling != RemovePercent {
				out = append(out, '%')
			}
			i++
			continue

		default:
			i++
			if !s.path && c == '+' && cfg.PlusSpaceDecode {
				c = ' '
			}
		}

		if c == 0 {
			if encoded {
				s.set(s.fs.encodedNul, cfg.NulEncodedUnwanted)
				if cfg.NulEncodedTerminates {
					return out
				}
			} else {
				s.set(s.fs.rawNul, cfg.NulRawUnwanted)
				if cfg.NulRawTerminates {
					return out
				}
			}
		}
		if c < 0x20 && cfg.ControlCharsUnwanted != 0 {
			s.status = cfg.ControlCharsUnwanted
		}

		if s.path {
			if encoded && (c == '/' || (c == '\\' && cfg.BackslashConvertSlashes)) {
				s.set(flags.PathEncodedSeparator, cfg.PathSeparatorsEncodedUnwanted)
				if !cfg.PathSeparatorsDecode {
					out = append(out, raw...)
					continue
				}
			}
			if c == '\\' && cfg.BackslashConvertSlashes {
				c = '/'
			}
			if cfg.ConvertLowercase {
				c = toLower(c)
			}
			if c == '/' && cfg.PathSeparatorsCompress && len(out) > 0 && out[len(out)-1] == '/' {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// DecodePath 按策略解码请求路径
//
// 依次处理 %XX / %uHHHH 解码 编码分隔符 NUL 截断 反斜杠转换 小写转换以及分隔符压缩
// UTF-8 校验不在此处进行 参见 DecodeUTF8Path
func (c *Config) DecodePath(in []byte) ([]byte, flags.Flags, int) {
	s := decodeState{cfg: c, fs: pathFlags, path: true}
	out := s.run(in)
	return out, s.flags, s.status
}

// DecodeURLEncoded 按策略解码 urlencoded 的参数名或参数值
func (c *Config) DecodeURLEncoded(in []byte) ([]byte, flags.Flags, int) {
	s := decodeState{cfg: c, fs: urlenFlags}
	out := s.run(in)
	return out, s.flags, s.status
}

// DecodeUTF8Path 校验路径中的 UTF-8 序列
//
// 未开启 UTF8ConvertBestFit 时仅设置标记 不修改内容
// 开启后每个多字节序列被映射为单字节 非法序列替换为 BestFitReplacementByte
// 只有包含至少一个合法多字节序列且没有非法或 overlong 序列时才会设置 PathUTF8Valid
func (c *Config) DecodeUTF8Path(in []byte) ([]byte, flags.Flags, int) {
	var (
		dec       UTF8Decoder
		f         flags.Flags
		status    int
		seenValid bool
		start     int
	)
	convert := c.UTF8ConvertBestFit
	out := in
	if convert {
		out = make([]byte, 0, len(in))
	}

	invalid := func(seq []byte) {
		f |= flags.PathUTF8Invalid
		if c.UTF8InvalidUnwanted != 0 {
			status = c.UTF8InvalidUnwanted
		}
		if convert && len(seq) > 0 {
			out = append(out, c.BestFitReplacementByte)
		}
	}

	for i := 0; i < len(in); i++ {
		state, cp, overlong, retry := dec.Decode(in[i])
		switch state {
		case UTF8Continue:
			continue

		case UTF8Accept:
			if i > start {
				if overlong {
					f |= flags.PathUTF8Overlong
				} else {
					seenValid = true
				}
				if cp >= 0xFF00 && cp <= 0xFFEF {
					f |= flags.PathHalfFullRange
				}
				if convert {
					out = append(out, c.bestFit(cp))
				}
			} else if convert {
				out = append(out, in[i])
			}
			start = i + 1

		case UTF8Reject:
			if retry {
				invalid(in[start:i])
				i--
			} else {
				invalid(in[start : i+1])
			}
			start = i + 1
		}
	}
	if start < len(in) {
		invalid(in[start:])
	}

	if seenValid && !f.Has(flags.PathUTF8Invalid|flags.PathUTF8Overlong) {
		f |= flags.PathUTF8Valid
	}
	return out, f, status
}

// RemoveDotSegments 按 RFC 3986 5.2.4 移除路径中的 . 与 .. 段
func RemoveDotSegments(in []byte) []byte {
	if len(in) == 0 {
		return in
	}

	out := make([]byte, 0, len(in))
	buf := in
	for len(buf) > 0 {
		switch {
		case hasPrefix(buf, "../"):
			buf = buf[3:]
		case hasPrefix(buf, "./"):
			buf = buf[2:]
		case hasPrefix(buf, "/./"):
			buf = buf[2:]
		case string(buf) == "/.":
			buf = []byte("/")
		case hasPrefix(buf, "/../"):
			buf = buf[3:]
			out = trimLastSegment(out)
		case string(buf) == "/..":
			buf = []byte("/")
			out = trimLastSegment(out)
		case string(buf) == "." || string(buf) == "..":
			buf = nil
		default:
			j := 1
			if buf[0] != '/' {
				j = 0
			}
			for j < len(buf) && buf[j] != '/' {
				j++
			}
			out = append(out, buf[:j]...)
			buf = buf[j:]
		}
	}
	return out
}

func hasPrefix(p []byte, s string) bool {
	return len(p) >= len(s) && string(p[:len(s)]) == s
}

func trimLastSegment(p []byte) []byte {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return p[:0]
}

// NormalizePath 路径规范化的完整流程
func (c *Config) NormalizePath(in []byte) ([]byte, flags.Flags, int) {
	out, f, status := c.DecodePath(in)

	decoded, uf, ustatus := c.DecodeUTF8Path(out)
	out = decoded
	f |= uf
	if ustatus != 0 {
		status = ustatus
	}

	if c.RemoveDotSegments {
		out = RemoveDotSegments(out)
	}
	return out, f, status
}
