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
	"github.com/pkg/errors"

	"github.com/packetd/htp/internal/bstr"
)

// state 记录着 Parser 的处理状态
type state uint8

const (
	// stateData 正在读取 part 内容 寻找下一个换行符
	stateData state = iota

	// stateBoundary 换行符之后 尝试匹配 --boundary
	stateBoundary

	// stateBoundaryIsLast1 boundary 已匹配 检查是否紧跟第一个 -
	stateBoundaryIsLast1

	// stateBoundaryIsLast2 检查是否紧跟第二个 -
	stateBoundaryIsLast2

	// stateBoundaryEatLWS 消费 boundary 之后的空白直至换行
	stateBoundaryEatLWS

	// stateBoundaryEatLWSCR 已经看到 CR 等待 LF
	stateBoundaryEatLWSCR
)

// FileDataFunc 文件类型 part 的数据回调 data 为 nil 表示文件结束
type FileDataFunc func(f *File, data []byte) error

// Config Parser 配置
type Config struct {
	ExtractFiles      bool
	ExtractFilesLimit int
	TmpDir            string
	FileData          FileDataFunc
}

// Parser multipart/form-data 流式解析器
type Parser struct {
	cfg       Config
	boundary  []byte // --boundary
	flags     Flags
	parts     []*Part
	current   *Part
	st        state
	matchPos  int
	held      []byte // 候选 boundary 之前的换行符
	crAside   bool
	lastSeen  bool // 已经看到 --boundary--
	isLast    bool // 当前 boundary 为结束 boundary
	extracted int
	finished  bool
}

// New 创建并返回 *Parser 实例 boundary 不包含前缀 --
func New(boundary []byte, cfg Config) *Parser {
	b := make([]byte, 0, len(boundary)+2)
	b = append(b, '-', '-')
	b = append(b, boundary...)
	return &Parser{
		cfg:      cfg,
		boundary: b,
		st:       stateBoundary,
	}
}

// NewFromContentType 从 Content-Type 中提取 boundary 并创建 Parser
func NewFromContentType(contentType []byte, cfg Config) (*Parser, error) {
	boundary, f, ok := FindBoundary(contentType)
	if !ok {
		return nil, errors.Errorf("multipart: no boundary in content-type %q", contentType)
	}
	p := New(boundary, cfg)
	p.flags |= f
	return p, nil
}

// Flags 返回解析过程中设置的标记
func (p *Parser) Flags() Flags {
	return p.flags
}

// AddFlags 追加外部观察到的标记 (如 Content-Type 中的 boundary 异常)
func (p *Parser) AddFlags(f Flags) {
	p.flags |= f
}

// Parts 返回所有已经开始解析的 part
func (p *Parser) Parts() []*Part {
	return p.parts
}

// Boundary 返回不含 -- 前缀的 boundary
func (p *Parser) Boundary() []byte {
	return p.boundary[2:]
}

// Parse 喂入一段请求体数据
func (p *Parser) Parse(data []byte) error {
	if p.finished {
		return nil
	}

	i := 0
	for i < len(data) {
		switch p.st {
		case stateData:
			n, err := p.scanData(data[i:])
			if err != nil {
				return err
			}
			i += n

		case stateBoundary:
			for i < len(data) && p.matchPos < len(p.boundary) {
				if data[i] != p.boundary[p.matchPos] {
					break
				}
				p.matchPos++
				i++
			}
			if p.matchPos == len(p.boundary) {
				p.held = p.held[:0]
				p.matchPos = 0
				p.st = stateBoundaryIsLast1
				continue
			}
			if i < len(data) {
				// 不匹配 之前暂存的内容都属于 part 数据
				if err := p.releaseHeld(); err != nil {
					return err
				}
				p.st = stateData
			}

		case stateBoundaryIsLast1:
			if data[i] == '-' {
				i++
				p.st = stateBoundaryIsLast2
				continue
			}
			p.st = stateBoundaryEatLWS

		case stateBoundaryIsLast2:
			if data[i] == '-' {
				i++
				p.isLast = true
			} else {
				p.flags |= BBoundaryNLWSAfter
			}
			p.st = stateBoundaryEatLWS

		case stateBoundaryEatLWS:
			switch data[i] {
			case '\r':
				i++
				p.st = stateBoundaryEatLWSCR
			case '\n':
				i++
				p.flags |= LFLine
				if err := p.boundaryComplete(true); err != nil {
					return err
				}
			case ' ', '\t':
				i++
				p.flags |= BBoundaryLWSAfter
			default:
				p.flags |= BBoundaryNLWSAfter
				if err := p.boundaryComplete(true); err != nil {
					return err
				}
				p.st = stateData
			}

		case stateBoundaryEatLWSCR:
			lineEnd := data[i] == '\n'
			if lineEnd {
				i++
				p.flags |= CRLFLine
			} else {
				p.flags |= BBoundaryNLWSAfter
			}
			if err := p.boundaryComplete(true); err != nil {
				return err
			}
			if !lineEnd {
				p.st = stateData
			}
		}
	}
	return nil
}

// scanData 在 stateData 状态下寻找换行符 返回消费的字节数
func (p *Parser) scanData(data []byte) (int, error) {
	if p.crAside {
		p.crAside = false
		if data[0] == '\n' {
			p.startCandidate(crlf)
			return 1, nil
		}
		if err := p.emit(cr, false); err != nil {
			return 0, err
		}
	}

	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\n':
			if err := p.emit(data[:i], false); err != nil {
				return 0, err
			}
			p.startCandidate(lf)
			return i + 1, nil

		case '\r':
			if i+1 == len(data) {
				if err := p.emit(data[:i], false); err != nil {
					return 0, err
				}
				p.crAside = true
				return i + 1, nil
			}
			if data[i+1] == '\n' {
				if err := p.emit(data[:i], false); err != nil {
					return 0, err
				}
				p.startCandidate(crlf)
				return i + 2, nil
			}
		}
	}
	return len(data), p.emit(data, false)
}

var (
	cr   = []byte("\r")
	lf   = []byte("\n")
	crlf = []byte("\r\n")
)

func (p *Parser) startCandidate(eol []byte) {
	p.held = append(p.held[:0], eol...)
	p.matchPos = 0
	p.st = stateBoundary
}

// releaseHeld 候选 boundary 匹配失败 将暂存的换行符与已匹配的前缀作为数据输出
func (p *Parser) releaseHeld() error {
	if len(p.held) > 0 {
		if err := p.emit(p.held, true); err != nil {
			return err
		}
		p.held = p.held[:0]
	}
	if p.matchPos > 0 {
		if err := p.emit(p.boundary[:p.matchPos], false); err != nil {
			return err
		}
		p.matchPos = 0
	}
	return nil
}

// boundaryComplete 一个完整的 boundary 行已经结束
func (p *Parser) boundaryComplete(startNew bool) error {
	if p.current != nil {
		if err := p.finalizePart(p.current); err != nil {
			return err
		}
		p.current = nil
	}
	// 紧随其后的一行同样可能是 boundary
	p.st = stateBoundary
	p.held = p.held[:0]
	p.matchPos = 0

	if p.isLast {
		p.isLast = false
		p.lastSeen = true
		p.flags |= SeenLastBoundary
		return nil
	}
	if !startNew {
		return nil
	}
	if p.lastSeen {
		p.flags |= PartAfterLastBoundary
	}
	p.current = &Part{mode: modeLine}
	p.parts = append(p.parts, p.current)
	return nil
}

// emit 将数据交给当前 part eol 表示 data 为换行符
func (p *Parser) emit(data []byte, eol bool) error {
	if len(data) == 0 {
		return nil
	}

	if p.current == nil {
		part := &Part{mode: modeData}
		if p.lastSeen {
			part.Type = PartTypeEpilogue
			p.flags |= HasEpilogue
		} else {
			part.Type = PartTypePreamble
			p.flags |= HasPreamble
		}
		p.current = part
		p.parts = append(p.parts, part)
	}

	part := p.current
	if part.mode == modeLine {
		return p.handleLine(part, data, eol)
	}
	return p.handleData(part, data)
}

func (p *Parser) handleLine(part *Part, data []byte, eol bool) error {
	if !eol {
		for _, c := range data {
			if c == 0 {
				p.flags |= NulByte
				break
			}
		}
		part.line = append(part.line, data...)
		return nil
	}

	line := part.line
	part.line = part.line[:0]

	// 空行 头部结束
	if len(line) == 0 {
		p.processPending(part)
		part.mode = modeData
		return p.determineType(part)
	}

	if bstr.IsLWS(line[0]) {
		if part.pending == nil {
			p.flags |= PartHeaderInvalid
			part.pending = append([]byte{}, bstr.TrimSpace(line)...)
			return nil
		}
		p.flags |= PartHeaderFolding
		part.pending = append(part.pending, ' ')
		part.pending = append(part.pending, bstr.TrimSpace(line)...)
		return nil
	}

	p.processPending(part)
	part.pending = append([]byte{}, line...)
	return nil
}

func (p *Parser) processPending(part *Part) {
	if part.pending == nil {
		return
	}
	p.flags |= part.parseHeaderLine(part.pending)
	part.pending = nil
}

func (p *Parser) determineType(part *Part) error {
	if h := part.Header("content-type"); h != nil {
		part.ContentType = h.Value
	}

	h := part.Header("content-disposition")
	if h == nil {
		part.Type = PartTypeUnknown
		p.flags |= PartUnknown
		return nil
	}

	cd, f := ParseContentDisposition(h.Value)
	p.flags |= f
	part.Name = cd.Name

	switch {
	case cd.HasFilename:
		part.Type = PartTypeFile
		part.File = &File{Filename: cd.Filename}
		return p.openFile(part.File)
	case cd.HasName:
		part.Type = PartTypeText
		part.Value = []byte{}
	default:
		part.Type = PartTypeUnknown
		p.flags |= PartUnknown
	}
	return nil
}

func (p *Parser) openFile(f *File) error {
	if !p.cfg.ExtractFiles {
		return nil
	}
	if p.cfg.ExtractFilesLimit > 0 && p.extracted >= p.cfg.ExtractFilesLimit {
		return nil
	}

	if err := f.CreateTemp(p.cfg.TmpDir); err != nil {
		return err
	}
	p.extracted++
	return nil
}

func (p *Parser) handleData(part *Part, data []byte) error {
	part.Len += int64(len(data))

	switch part.Type {
	case PartTypeText:
		part.Value = append(part.Value, data...)
	case PartTypeFile:
		if err := part.File.Append(data); err != nil {
			return err
		}
		if p.cfg.FileData != nil {
			return p.cfg.FileData(part.File, data)
		}
	}
	return nil
}

func (p *Parser) finalizePart(part *Part) error {
	if part.mode == modeLine {
		p.processPending(part)
		p.flags |= PartIncomplete
		return nil
	}
	if part.Type != PartTypeFile {
		return nil
	}

	err := part.File.close()
	if p.cfg.FileData != nil {
		if cerr := p.cfg.FileData(part.File, nil); cerr != nil {
			return cerr
		}
	}
	return err
}

// Finalize 请求体结束 处理暂存数据并完成当前 part
func (p *Parser) Finalize() error {
	if p.finished {
		return nil
	}
	p.finished = true

	switch p.st {
	case stateBoundary:
		if err := p.releaseHeld(); err != nil {
			return err
		}
	case stateBoundaryIsLast1, stateBoundaryIsLast2, stateBoundaryEatLWS, stateBoundaryEatLWSCR:
		if err := p.boundaryComplete(false); err != nil {
			return err
		}
	case stateData:
		if p.crAside {
			p.crAside = false
			if err := p.emit(cr, false); err != nil {
				return err
			}
		}
	}

	if p.current != nil {
		if err := p.finalizePart(p.current); err != nil {
			return err
		}
		p.current = nil
	}
	if !p.lastSeen {
		p.flags |= Incomplete
	}
	return nil
}

// Close 释放仍然打开的临时文件
func (p *Parser) Close() error {
	var err error
	for _, part := range p.parts {
		if part.File != nil {
			if cerr := part.File.close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}
	return err
}
