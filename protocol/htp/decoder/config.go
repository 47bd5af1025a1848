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
	"strings"

	"github.com/pkg/errors"
)

// InvalidHandling 决定如何处理非法的 %XX 编码
type InvalidHandling uint8

const (
	// PreservePercent 保留 % 字符 后续字节按原样处理
	PreservePercent InvalidHandling = iota

	// RemovePercent 丢弃 % 字符 后续字节按原样处理
	RemovePercent

	// ProcessInvalid 强行按十六进制解码 与 IIS 5.x 的行为一致
	ProcessInvalid
)

func (h InvalidHandling) String() string {
	switch h {
	case RemovePercent:
		return "remove_percent"
	case ProcessInvalid:
		return "process_invalid"
	}
	return "preserve_percent"
}

// ParseInvalidHandling 解析配置文件中的取值
func ParseInvalidHandling(s string) (InvalidHandling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preserve_percent", "preserve_%":
		return PreservePercent, nil
	case "remove_percent", "remove_%":
		return RemovePercent, nil
	case "process_invalid":
		return ProcessInvalid, nil
	}
	return PreservePercent, errors.Errorf("decoder: unknown url_encoding_invalid_handling %q", s)
}

// Config 解码策略
//
// 所有 *Unwanted 字段均为建议的响应状态码 0 表示忽略
// 命中对应规则时该状态码会被记录到 Transaction 上 不会中断解析
type Config struct {
	UEncodingDecode               bool            `config:"u_encoding_decode" mapstructure:"u_encoding_decode"`
	UEncodingUnwanted             int             `config:"u_encoding_unwanted" mapstructure:"u_encoding_unwanted"`
	URLEncodingInvalidHandling    InvalidHandling `config:"-" mapstructure:"-"`
	URLEncodingInvalidUnwanted    int             `config:"url_encoding_invalid_unwanted" mapstructure:"url_encoding_invalid_unwanted"`
	NulEncodedTerminates          bool            `config:"nul_encoded_terminates" mapstructure:"nul_encoded_terminates"`
	NulEncodedUnwanted            int             `config:"nul_encoded_unwanted" mapstructure:"nul_encoded_unwanted"`
	NulRawTerminates              bool            `config:"nul_raw_terminates" mapstructure:"nul_raw_terminates"`
	NulRawUnwanted                int             `config:"nul_raw_unwanted" mapstructure:"nul_raw_unwanted"`
	PathSeparatorsDecode          bool            `config:"path_separators_decode" mapstructure:"path_separators_decode"`
	PathSeparatorsCompress        bool            `config:"path_separators_compress" mapstructure:"path_separators_compress"`
	PathSeparatorsEncodedUnwanted int             `config:"path_separators_encoded_unwanted" mapstructure:"path_separators_encoded_unwanted"`
	BackslashConvertSlashes       bool            `config:"backslash_convert_slashes" mapstructure:"backslash_convert_slashes"`
	ConvertLowercase              bool            `config:"convert_lowercase" mapstructure:"convert_lowercase"`
	RemoveDotSegments             bool            `config:"remove_dot_segments" mapstructure:"remove_dot_segments"`
	PlusSpaceDecode               bool            `config:"plus_space_decode" mapstructure:"plus_space_decode"`
	ControlCharsUnwanted          int             `config:"control_chars_unwanted" mapstructure:"control_chars_unwanted"`
	UTF8ConvertBestFit            bool            `config:"utf8_convert_bestfit" mapstructure:"utf8_convert_bestfit"`
	UTF8InvalidUnwanted           int             `config:"utf8_invalid_unwanted" mapstructure:"utf8_invalid_unwanted"`
	BestFitReplacementByte        byte            `config:"bestfit_replacement_byte" mapstructure:"bestfit_replacement_byte"`
	BestFitMap                    *BestFitMap     `config:"-" mapstructure:"-"`
}

// DefaultConfig 返回最保守的解码策略 仅做标准的 %XX 解码
func DefaultConfig() Config {
	return Config{
		URLEncodingInvalidHandling: PreservePercent,
		PlusSpaceDecode:            true,
		BestFitReplacementByte:     '?',
		BestFitMap:                 DefaultBestFitMap(),
	}
}

// bestFit 将码点映射为单字节
func (c *Config) bestFit(cp rune) byte {
	m := c.BestFitMap
	if m == nil {
		m = DefaultBestFitMap()
	}
	return m.Lookup(cp, c.BestFitReplacementByte)
}
