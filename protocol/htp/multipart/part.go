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
	"os"

	"github.com/pkg/errors"

	"github.com/packetd/htp/internal/bstr"
)

// PartType part 的类型 由 Content-Disposition 决定
type PartType uint8

const (
	PartTypeUnknown PartType = iota
	PartTypeText
	PartTypeFile
	PartTypePreamble
	PartTypeEpilogue
)

func (t PartType) String() string {
	switch t {
	case PartTypeText:
		return "text"
	case PartTypeFile:
		return "file"
	case PartTypePreamble:
		return "preamble"
	case PartTypeEpilogue:
		return "epilogue"
	}
	return "unknown"
}

// Header part 内的头部字段
type Header struct {
	Name  []byte
	Value []byte
}

// File 文件类型 part 对应的上传文件
type File struct {
	Filename []byte
	Len      int64
	TmpName  string // 仅在开启文件提取时有值

	fd *os.File
}

func (f *File) write(p []byte) error {
	if f.fd == nil {
		return nil
	}
	if _, err := f.fd.Write(p); err != nil {
		return errors.Wrapf(err, "multipart: write tmpfile %s", f.TmpName)
	}
	return nil
}

// CreateTemp 在 dir 下创建临时文件 之后通过 Append 写入的数据会同时落盘
func (f *File) CreateTemp(dir string) error {
	fd, err := os.CreateTemp(dir, "htp-file-*")
	if err != nil {
		return errors.Wrap(err, "multipart: create tmpfile")
	}
	f.fd = fd
	f.TmpName = fd.Name()
	return nil
}

// Append 累加文件长度并写入临时文件 (如有)
func (f *File) Append(p []byte) error {
	f.Len += int64(len(p))
	return f.write(p)
}

// Close 关闭临时文件 重复调用安全
func (f *File) Close() error {
	return f.close()
}

func (f *File) close() error {
	if f.fd == nil {
		return nil
	}
	err := f.fd.Close()
	f.fd = nil
	return err
}

type partMode uint8

const (
	modeLine partMode = iota
	modeData
)

// Part multipart 中的一个分段
type Part struct {
	Type        PartType
	Name        []byte
	Value       []byte // 文本类型 part 的内容
	ContentType []byte
	Headers     []*Header
	File        *File
	Len         int64

	mode    partMode
	line    []byte
	pending []byte
}

// Header 查找头部 名称忽略大小写
func (p *Part) Header(name string) *Header {
	for _, h := range p.Headers {
		if bstr.EqualFold(h.Name, name) {
			return h
		}
	}
	return nil
}

func (p *Part) addHeader(name, value []byte) Flags {
	var f Flags
	if h := p.Header(string(name)); h != nil {
		h.Value = append(h.Value, ", "...)
		h.Value = append(h.Value, value...)
		return PartHeaderRepeated
	}

	if !bstr.EqualFold(name, "content-disposition") && !bstr.EqualFold(name, "content-type") {
		f |= PartHeaderUnknown
	}
	p.Headers = append(p.Headers, &Header{
		Name:  append([]byte{}, name...),
		Value: append([]byte{}, value...),
	})
	return f
}

// parseHeaderLine 解析 part 头部中的一行 (已完成折叠拼接)
func (p *Part) parseHeaderLine(line []byte) Flags {
	colon := -1
	for i, c := range line {
		if c == ':' {
			colon = i
			break
		}
	}
	if colon <= 0 {
		return PartHeaderInvalid
	}

	var f Flags
	name := line[:colon]
	if bstr.IsLWS(name[len(name)-1]) {
		f |= PartHeaderInvalid
		name = bstr.TrimRightSpace(name)
	}
	for _, c := range name {
		if c <= ' ' || c >= 0x7F {
			f |= PartHeaderInvalid
			break
		}
	}
	if len(name) == 0 {
		return f | PartHeaderInvalid
	}
	value := bstr.TrimSpace(line[colon+1:])
	return f | p.addHeader(name, value)
}

// ContentDisposition 解析后的 Content-Disposition 参数
type ContentDisposition struct {
	Name        []byte
	Filename    []byte
	HasName     bool
	HasFilename bool
}

// ParseContentDisposition 解析 form-data 类型的 Content-Disposition
//
// 引号内的 \" 与 \\ 会被反转义 其余 \x 序列按原样保留两个字节
func ParseContentDisposition(v []byte) (ContentDisposition, Flags) {
	var (
		cd ContentDisposition
		f  Flags
	)
	const typ = "form-data"
	if !bstr.HasPrefixFold(v, typ) {
		return cd, CDTypeInvalid
	}

	pos := len(typ)
	skipLWS := func() {
		for pos < len(v) && bstr.IsLWS(v[pos]) {
			pos++
		}
	}

	for {
		skipLWS()
		if pos >= len(v) {
			return cd, f
		}
		if v[pos] != ';' {
			return cd, f | CDSyntaxInvalid
		}
		pos++
		skipLWS()
		if pos >= len(v) {
			return cd, f
		}

		start := pos
		for pos < len(v) && v[pos] != '=' && !bstr.IsLWS(v[pos]) && v[pos] != ';' {
			pos++
		}
		name := v[start:pos]
		if len(name) == 0 {
			return cd, f | CDSyntaxInvalid
		}
		skipLWS()
		if pos >= len(v) || v[pos] != '=' {
			return cd, f | CDSyntaxInvalid
		}
		pos++
		skipLWS()

		var value []byte
		if pos < len(v) && v[pos] == '"' {
			pos++
			closed := false
			value = []byte{}
			for pos < len(v) {
				c := v[pos]
				if c == '\\' && pos+1 < len(v) && (v[pos+1] == '"' || v[pos+1] == '\\') {
					value = append(value, v[pos+1])
					pos += 2
					continue
				}
				if c == '"' {
					pos++
					closed = true
					break
				}
				value = append(value, c)
				pos++
			}
			if !closed {
				return cd, f | CDSyntaxInvalid
			}
		} else {
			start = pos
			for pos < len(v) && v[pos] != ';' && !bstr.IsLWS(v[pos]) {
				pos++
			}
			value = append([]byte{}, v[start:pos]...)
		}

		switch {
		case bstr.EqualFold(name, "name"):
			if cd.HasName {
				f |= CDParamRepeated
			}
			cd.Name, cd.HasName = value, true
		case bstr.EqualFold(name, "filename"):
			if cd.HasFilename {
				f |= CDParamRepeated
			}
			cd.Filename, cd.HasFilename = value, true
		default:
			f |= CDParamUnknown
		}
	}
}
