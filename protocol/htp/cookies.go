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
	"bytes"

	"github.com/packetd/htp/internal/bstr"
)

// parseCookies 解析 version 0 格式的 Cookie 头部
//
// 分号分隔 名称前后空白被去除 没有等号的项视为值为空
func (p *ConnParser) parseCookies(tx *Transaction) {
	h := tx.RequestHeaders.Get("cookie")
	if h == nil {
		return
	}

	data := h.Value
	for len(data) > 0 {
		var item []byte
		if idx := bytes.IndexByte(data, ';'); idx >= 0 {
			item, data = data[:idx], data[idx+1:]
		} else {
			item, data = data, nil
		}

		item = bstr.TrimSpace(item)
		if len(item) == 0 {
			continue
		}

		name, value := item, []byte{}
		if idx := bytes.IndexByte(item, '='); idx >= 0 {
			name, value = item[:idx], item[idx+1:]
		}
		if len(name) == 0 {
			continue
		}

		c := Param{
			Name:   bstr.Clone(name),
			Value:  bstr.Clone(value),
			Source: ParamSourceCookie,
		}
		tx.RequestCookies = append(tx.RequestCookies, c)
		tx.RequestParams = append(tx.RequestParams, c)
	}
}
