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

package htp

import (
	"github.com/packetd/htp/internal/bstr"
	"github.com/packetd/htp/protocol/htp/flags"
)

// Header 单个头部字段
//
// Name 保持原始大小写 比较时忽略大小写 Value 已去除首尾空白
type Header struct {
	Name  []byte
	Value []byte
	Flags flags.Flags
}

// Headers 保持插入顺序的头部表
//
// 同名头部不会新增条目 而是以 ", " 拼接到第一次出现的条目上
type Headers struct {
	list []*Header
}

func NewHeaders() *Headers {
	return &Headers{}
}

// Get 查找头部 名称忽略大小写
func (hs *Headers) Get(name string) *Header {
	for _, h := range hs.list {
		if bstr.EqualFold(h.Name, name) {
			return h
		}
	}
	return nil
}

// Value 返回头部的值 不存在时返回 nil
func (hs *Headers) Value(name string) []byte {
	if h := hs.Get(name); h != nil {
		return h.Value
	}
	return nil
}

func (hs *Headers) Has(name string) bool {
	return hs.Get(name) != nil
}

func (hs *Headers) Len() int {
	return len(hs.list)
}

// All 按照插入顺序返回所有头部
func (hs *Headers) All() []*Header {
	return hs.list
}

func (hs *Headers) Reset() {
	hs.list = hs.list[:0]
}

type addResult uint8

const (
	headerAdded addResult = iota
	headerMerged
	headerDuplicateCL
)

// add 插入头部 返回插入的结果
func (hs *Headers) add(h *Header) addResult {
	existing := hs.Get(string(h.Name))
	if existing == nil {
		hs.list = append(hs.list, h)
		return headerAdded
	}

	// Content-Length 重复时只保留第一个值
	if bstr.EqualFold(h.Name, "content-length") {
		existing.Flags |= flags.RequestSmuggling
		return headerDuplicateCL
	}
	existing.Value = append(existing.Value, ',', ' ')
	existing.Value = append(existing.Value, h.Value...)
	existing.Flags |= flags.FieldRepeated | h.Flags
	return headerMerged
}
