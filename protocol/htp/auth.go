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
	"encoding/base64"

	"github.com/packetd/htp/internal/bstr"
	"github.com/packetd/htp/protocol/htp/flags"
)

// parseAuthorization 解析 Authorization 头部 支持 Basic 与 Digest
func (p *ConnParser) parseAuthorization(tx *Transaction) {
	h := tx.RequestHeaders.Get("authorization")
	if h == nil {
		tx.RequestAuthType = AuthNone
		return
	}

	v := bstr.TrimLeftSpace(h.Value)
	switch {
	case bstr.HasPrefixFold(v, "basic"):
		tx.RequestAuthType = AuthBasic
		if !parseAuthBasic(tx, v[len("basic"):]) {
			tx.Flags |= flags.AuthInvalid
		}

	case bstr.HasPrefixFold(v, "digest"):
		tx.RequestAuthType = AuthDigest
		if !parseAuthDigest(tx, v[len("digest"):]) {
			tx.Flags |= flags.AuthInvalid
		}

	default:
		tx.RequestAuthType = AuthUnrecognized
		p.log(tx, LogWarning, LogAuthUnrecognized, "unrecognized authorization scheme")
	}
}

func parseAuthBasic(tx *Transaction, v []byte) bool {
	v = bstr.TrimSpace(v)
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(v)))
	n, err := base64.StdEncoding.Decode(decoded, v)
	if err != nil {
		return false
	}
	decoded = decoded[:n]

	idx := bytes.IndexByte(decoded, ':')
	if idx < 0 {
		return false
	}
	tx.RequestAuthUsername = decoded[:idx]
	tx.RequestAuthPassword = decoded[idx+1:]
	return true
}

// parseAuthDigest 只提取 username 参数 值必须为带引号的字符串
func parseAuthDigest(tx *Transaction, v []byte) bool {
	idx := bstr.IndexFold(v, "username=")
	if idx < 0 {
		return false
	}
	v = bstr.TrimLeftSpace(v[idx+len("username="):])
	if len(v) == 0 || v[0] != '"' {
		return false
	}

	var username []byte
	escaped := false
	for i := 1; i < len(v); i++ {
		c := v[i]
		switch {
		case escaped:
			escaped = false
			username = append(username, c)
		case c == '\\':
			escaped = true
		case c == '"':
			if username == nil {
				username = []byte{}
			}
			tx.RequestAuthUsername = username
			return true
		default:
			username = append(username, c)
		}
	}
	return false
}
