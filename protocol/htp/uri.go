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
	"net/netip"

	"github.com/packetd/htp/internal/bstr"
	"github.com/packetd/htp/protocol/htp/flags"
)

// URI 请求目标拆分后的各个组成部分 nil 表示不存在
type URI struct {
	Scheme     []byte
	Username   []byte
	Password   []byte
	Hostname   []byte
	Port       []byte
	PortNumber int // -1 表示不存在或者非法
	Path       []byte
	Query      []byte
	Fragment   []byte
}

// ParseURI 拆分原始请求目标 解析失败的部分体现在返回的标记上
func ParseURI(input []byte) (*URI, flags.Flags) {
	u := &URI{PortNumber: -1}
	var f flags.Flags
	if len(input) == 0 {
		return u, f
	}

	rest := input
	if rest[0] != '/' {
		if idx := bytes.IndexAny(rest, ":/?#"); idx > 0 && rest[idx] == ':' {
			u.Scheme = bstr.Clone(rest[:idx])
			rest = rest[idx+1:]
		}
	}

	if len(rest) >= 2 && rest[0] == '/' && rest[1] == '/' && (len(rest) == 2 || rest[2] != '/') {
		rest = rest[2:]
		end := bytes.IndexAny(rest, "/?#")
		if end < 0 {
			end = len(rest)
		}
		f |= u.parseAuthority(rest[:end])
		rest = rest[end:]
	}

	if idx := bytes.IndexByte(rest, '#'); idx >= 0 {
		u.Fragment = bstr.Clone(rest[idx+1:])
		rest = rest[:idx]
	}
	if idx := bytes.IndexByte(rest, '?'); idx >= 0 {
		u.Query = bstr.Clone(rest[idx+1:])
		rest = rest[:idx]
	}
	if len(rest) > 0 {
		u.Path = bstr.Clone(rest)
	}
	return u, f
}

// ParseHostPort 解析 CONNECT 请求目标或者 Host 头部形式的 host[:port]
func ParseHostPort(input []byte) (*URI, flags.Flags) {
	u := &URI{PortNumber: -1}
	f := u.parseHostPort(bstr.TrimSpace(input))
	return u, f
}

func (u *URI) parseAuthority(auth []byte) flags.Flags {
	if idx := bytes.IndexByte(auth, '@'); idx >= 0 {
		userinfo := auth[:idx]
		auth = auth[idx+1:]
		if c := bytes.IndexByte(userinfo, ':'); c >= 0 {
			u.Username = bstr.Clone(userinfo[:c])
			u.Password = bstr.Clone(userinfo[c+1:])
		} else {
			u.Username = bstr.Clone(userinfo)
		}
	}
	return u.parseHostPort(auth)
}

func (u *URI) parseHostPort(hp []byte) flags.Flags {
	var f flags.Flags
	if len(hp) == 0 {
		return f
	}

	var rest []byte
	if hp[0] == '[' {
		end := bytes.IndexByte(hp, ']')
		if end < 0 {
			u.Hostname = bstr.Clone(hp)
			return f | flags.HostUInvalid
		}
		u.Hostname = bstr.Clone(hp[:end+1])
		if !validIPv6(hp[1:end]) {
			f |= flags.HostUInvalid
		}
		rest = hp[end+1:]
		if len(rest) > 0 && rest[0] != ':' {
			return f | flags.HostUInvalid
		}
	} else {
		end := bytes.IndexByte(hp, ':')
		if end < 0 {
			end = len(hp)
		}
		u.Hostname = bstr.Clone(hp[:end])
		rest = hp[end:]
	}

	if len(rest) > 0 {
		u.Port = bstr.Clone(rest[1:])
		u.PortNumber = parsePort(u.Port)
		if u.PortNumber < 0 {
			f |= flags.HostUInvalid
		}
	}
	return f
}

func validIPv6(p []byte) bool {
	addr, err := netip.ParseAddr(string(p))
	return err == nil && addr.Is6()
}

// parsePort 端口必须为纯数字且位于 1-65535
func parsePort(p []byte) int {
	t := bstr.TrimSpace(p)
	if len(t) == 0 || len(t) > 5 {
		return -1
	}
	n := 0
	for _, c := range t {
		if !isDigit(c) {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	if n < 1 || n > 65535 {
		return -1
	}
	return n
}

// Unparse 重新拼接 URI 不做任何编码
//
// complete 为 false 时只包含 path query 与 fragment
func (u *URI) Unparse(complete bool) []byte {
	var b []byte
	if complete {
		if u.Scheme != nil {
			b = append(b, u.Scheme...)
			b = append(b, "://"...)
		}
		if u.Hostname != nil {
			if u.Username != nil || u.Password != nil {
				b = append(b, u.Username...)
				if u.Password != nil {
					b = append(b, ':')
					b = append(b, u.Password...)
				}
				b = append(b, '@')
			}
			b = append(b, u.Hostname...)
			if u.Port != nil {
				b = append(b, ':')
				b = append(b, u.Port...)
			}
		}
	}
	b = append(b, u.Path...)
	if u.Query != nil {
		b = append(b, '?')
		b = append(b, u.Query...)
	}
	if u.Fragment != nil {
		b = append(b, '#')
		b = append(b, u.Fragment...)
	}
	if b == nil {
		b = []byte{}
	}
	return b
}
