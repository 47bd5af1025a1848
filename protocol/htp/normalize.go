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
	"github.com/packetd/htp/protocol/htp/decoder"
	"github.com/packetd/htp/protocol/htp/flags"
)

// normalizeURI 按照解码策略规范化 URI 的各个部分
//
// 返回规范化后的 URI 路径相关的标记以及建议的响应状态码
func normalizeURI(cfg *decoder.Config, raw *URI) (*URI, flags.Flags, int) {
	var (
		f      flags.Flags
		status int
	)
	n := &URI{PortNumber: raw.PortNumber}

	if raw.Scheme != nil {
		n.Scheme = bstr.Clone(raw.Scheme)
		bstr.ToLower(n.Scheme)
	}
	if raw.Username != nil {
		n.Username, _, _ = cfg.DecodeURLEncoded(raw.Username)
	}
	if raw.Password != nil {
		n.Password, _, _ = cfg.DecodeURLEncoded(raw.Password)
	}
	if raw.Hostname != nil {
		decoded, _, _ := cfg.DecodeURLEncoded(raw.Hostname)
		host, ok := normalizeHostname(decoded)
		n.Hostname = host
		if !ok {
			f |= flags.HostUInvalid
		}
	}
	if raw.Port != nil {
		n.Port = bstr.Clone(raw.Port)
	}
	if raw.Path != nil {
		var pf flags.Flags
		n.Path, pf, status = cfg.NormalizePath(raw.Path)
		f |= pf
	}
	if raw.Query != nil {
		n.Query = bstr.Clone(raw.Query)
	}
	if raw.Fragment != nil {
		n.Fragment, _, _ = cfg.DecodeURLEncoded(raw.Fragment)
	}
	return n, f, status
}

// normalizeHostname 小写并去除结尾的点 返回值表示主机名是否合法
func normalizeHostname(h []byte) ([]byte, bool) {
	out := bstr.Clone(bstr.TrimSpace(h))
	bstr.ToLower(out)
	for len(out) > 0 && out[len(out)-1] == '.' {
		out = out[:len(out)-1]
	}
	return out, validHostname(out)
}

// validHostname 主机名由点分隔的标签组成 每个标签 1-63 个字符
//
// 标签内只允许字母数字 '-' 以及 '_' IPv6 地址需要使用方括号
func validHostname(h []byte) bool {
	if len(h) == 0 || len(h) > 255 {
		return false
	}
	if h[0] == '[' {
		return len(h) > 2 && h[len(h)-1] == ']' && validIPv6(h[1:len(h)-1])
	}

	for _, label := range bytes.Split(h, []byte{'.'}) {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' {
			return false
		}
		for _, c := range label {
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', isDigit(c), c == '-', c == '_':
			default:
				return false
			}
		}
	}
	return true
}
