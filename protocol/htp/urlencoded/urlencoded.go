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

package urlencoded

import (
	"bytes"

	"github.com/packetd/htp/protocol/htp/decoder"
	"github.com/packetd/htp/protocol/htp/flags"
)

// Param 解析出的参数 Name/Value 均已按策略解码
type Param struct {
	Name  []byte
	Value []byte
}

// Parser application/x-www-form-urlencoded 流式解析器
//
// 数据可以分多次喂入 未遇到分隔符的尾部片段会被暂存直到下一次 Parse 或 Finalize
type Parser struct {
	cfg       *decoder.Config
	separator byte
	decode    bool

	params []Param
	flags  flags.Flags
	status int

	tail     []byte
	seen     bool
	complete bool
}

// Option Parser 可选项
type Option func(p *Parser)

// WithSeparator 指定参数分隔符 默认为 &
func WithSeparator(c byte) Option {
	return func(p *Parser) {
		p.separator = c
	}
}

// WithoutDecode 不对参数名与参数值做解码
func WithoutDecode() Option {
	return func(p *Parser) {
		p.decode = false
	}
}

// New 创建并返回 *Parser 实例 cfg 为 nil 时使用默认解码策略
func New(cfg *decoder.Config, opts ...Option) *Parser {
	if cfg == nil {
		c := decoder.DefaultConfig()
		cfg = &c
	}
	p := &Parser{
		cfg:       cfg,
		separator: '&',
		decode:    true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseComplete 一次性解析完整的数据
func ParseComplete(cfg *decoder.Config, data []byte, opts ...Option) *Parser {
	p := New(cfg, opts...)
	p.Parse(data)
	p.Finalize()
	return p
}

// Parse 喂入一段数据
func (p *Parser) Parse(data []byte) {
	if p.complete || len(data) == 0 {
		return
	}
	p.seen = true

	for {
		idx := bytes.IndexByte(data, p.separator)
		if idx < 0 {
			p.tail = append(p.tail, data...)
			return
		}

		if len(p.tail) > 0 {
			p.tail = append(p.tail, data[:idx]...)
			p.addPiece(p.tail)
			p.tail = p.tail[:0]
		} else {
			p.addPiece(data[:idx])
		}
		data = data[idx+1:]
	}
}

// Finalize 结束解析 处理暂存的尾部片段
func (p *Parser) Finalize() {
	if p.complete {
		return
	}
	p.complete = true

	if len(p.tail) > 0 {
		p.addPiece(p.tail)
		p.tail = nil
	}
	if p.seen && len(p.params) == 0 {
		p.params = append(p.params, Param{Name: []byte{}, Value: []byte{}})
	}
}

func (p *Parser) addPiece(piece []byte) {
	if len(piece) == 0 {
		return
	}

	var name, value []byte
	if idx := bytes.IndexByte(piece, '='); idx >= 0 {
		name, value = piece[:idx], piece[idx+1:]
	} else {
		name = piece
	}

	p.params = append(p.params, Param{
		Name:  p.decodeField(name),
		Value: p.decodeField(value),
	})
}

func (p *Parser) decodeField(b []byte) []byte {
	if !p.decode {
		return append([]byte{}, b...)
	}
	out, f, status := p.cfg.DecodeURLEncoded(b)
	p.flags |= f
	if status != 0 {
		p.status = status
	}
	return out
}

// Params 返回已经解析出的参数 顺序与出现顺序一致 允许重名
func (p *Parser) Params() []Param {
	return p.params
}

// Get 返回第一个名称匹配的参数值
func (p *Parser) Get(name string) ([]byte, bool) {
	for _, param := range p.params {
		if string(param.Name) == name {
			return param.Value, true
		}
	}
	return nil, false
}

// Flags 解码过程中设置的标记
func (p *Parser) Flags() flags.Flags {
	return p.flags
}

// Status 解码策略建议的响应状态码 0 表示无
func (p *Parser) Status() int {
	return p.status
}

// Complete 是否已经调用过 Finalize
func (p *Parser) Complete() bool {
	return p.complete
}
