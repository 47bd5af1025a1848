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
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/packetd/htp/common"
	"github.com/packetd/htp/protocol/htp/decoder"
	"github.com/packetd/htp/protocol/htp/decompress"
)

const (
	DefaultFieldLimit                      = 18000
	DefaultResponseDecompressionLayerLimit = 2
	DefaultCompressionBombLimit            = 1048576
	DefaultCompressionBombRatio            = 2048
	DefaultCompressionTimeLimit            = 100 * time.Millisecond
	DefaultLzmaMemLimit                    = 1 << 20
	DefaultExtractRequestFilesLimit        = 16
)

// Config 解析器配置
//
// 一个 Config 可以被多个 ConnParser 共享 开始解析之后不能再修改
type Config struct {
	Personality Personality
	Decoder     decoder.Config

	// FieldLimit 跨数据块缓存的单行数据与未完成头部的长度上限
	FieldLimit int

	ResponseDecompression           bool
	RequestDecompression            bool
	ResponseDecompressionLayerLimit int
	CompressionBombLimit            int64
	CompressionBombRatio            int64
	CompressionTimeLimit            time.Duration
	LzmaMemLimit                    int

	ExtractRequestFiles      bool
	ExtractRequestFilesLimit int
	TmpDir                   string

	ParseRequestCookies bool
	ParseRequestAuth    bool
	ParseURLEncoded     bool
	ParseMultipart      bool
	TxAutoDestroy       bool

	// RequestLineLeadingWhitespaceUnwanted 请求行前导空白对应的建议状态码
	RequestLineLeadingWhitespaceUnwanted int

	// LogLevel 高于该级别的消息不会被记录
	LogLevel LogLevel

	// LogToZap 同时把引擎消息输出到进程日志
	LogToZap bool

	Hooks *Hooks
}

// NewConfig 创建并返回默认配置 personality 为 MINIMAL
func NewConfig() *Config {
	return &Config{
		Personality:                     PersonalityMinimal,
		Decoder:                         PersonalityMinimal.DecoderConfig(),
		FieldLimit:                      DefaultFieldLimit,
		ResponseDecompression:           true,
		ResponseDecompressionLayerLimit: DefaultResponseDecompressionLayerLimit,
		CompressionBombLimit:            DefaultCompressionBombLimit,
		CompressionBombRatio:            DefaultCompressionBombRatio,
		CompressionTimeLimit:            DefaultCompressionTimeLimit,
		LzmaMemLimit:                    DefaultLzmaMemLimit,
		ExtractRequestFilesLimit:        DefaultExtractRequestFilesLimit,
		TmpDir:                          os.TempDir(),
		ParseRequestCookies:             true,
		ParseRequestAuth:                true,
		ParseURLEncoded:                 true,
		ParseMultipart:                  true,
		LogLevel:                        LogNotice,
		Hooks:                           &Hooks{},
	}
}

// SetPersonality 切换 personality 并覆盖解码策略
func (c *Config) SetPersonality(p Personality) {
	c.Personality = p
	c.Decoder = p.DecoderConfig()
}

// Clone 复制配置 回调集合共享
func (c *Config) Clone() *Config {
	cc := *c
	return &cc
}

func (c *Config) decompressLimits() decompress.Limits {
	return decompress.Limits{
		LayerLimit: c.ResponseDecompressionLayerLimit,
		BombLimit:  c.CompressionBombLimit,
		BombRatio:  c.CompressionBombRatio,
		TimeLimit:  c.CompressionTimeLimit,
		Options: decompress.Options{
			LzmaMemLimit: c.LzmaMemLimit,
		},
	}
}

// ParseLogLevel 解析日志级别名称
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return LogNone, nil
	case "error":
		return LogError, nil
	case "warning", "warn":
		return LogWarning, nil
	case "", "notice":
		return LogNotice, nil
	case "info":
		return LogInfo, nil
	case "debug":
		return LogDebug, nil
	}
	return LogNotice, errors.Errorf("htp: unknown log level %q", s)
}

func setOption[T any](opts common.Options, k string, get func(string) (T, error), dst *T) error {
	if !opts.Has(k) {
		return nil
	}
	v, err := get(k)
	if err != nil {
		return errors.Wrapf(err, "htp: invalid option %s", k)
	}
	*dst = v
	return nil
}

// ConfigFromOptions 根据松散类型的配置项构建 Config
//
// personality 最先生效 decoder 中的配置项在 personality 预设的基础上覆盖
func ConfigFromOptions(opts common.Options) (*Config, error) {
	c := NewConfig()
	if opts.Has("personality") {
		s, err := opts.GetString("personality")
		if err != nil {
			return nil, errors.Wrap(err, "htp: invalid option personality")
		}
		p, err := ParsePersonality(s)
		if err != nil {
			return nil, err
		}
		c.SetPersonality(p)
	}
	if opts.Has("log_level") {
		s, err := opts.GetString("log_level")
		if err != nil {
			return nil, errors.Wrap(err, "htp: invalid option log_level")
		}
		if c.LogLevel, err = ParseLogLevel(s); err != nil {
			return nil, err
		}
	}

	ints := map[string]*int{
		"field_limit": &c.FieldLimit,
		"requestline_leading_whitespace_unwanted": &c.RequestLineLeadingWhitespaceUnwanted,
	}
	for k, dst := range ints {
		if err := setOption(opts, k, opts.GetInt, dst); err != nil {
			return nil, err
		}
	}
	bools := map[string]*bool{
		"tx_auto_destroy":        &c.TxAutoDestroy,
		"parse_request_cookies":  &c.ParseRequestCookies,
		"parse_request_auth":     &c.ParseRequestAuth,
		"parse_urlencoded":       &c.ParseURLEncoded,
		"parse_multipart":        &c.ParseMultipart,
		"request_decompression":  &c.RequestDecompression,
		"response_decompression": &c.ResponseDecompression,
		"log_to_zap":             &c.LogToZap,
	}
	for k, dst := range bools {
		if err := setOption(opts, k, opts.GetBool, dst); err != nil {
			return nil, err
		}
	}

	if opts.Has("limits") {
		m, err := cast.ToStringMapE(opts["limits"])
		if err != nil {
			return nil, errors.Wrap(err, "htp: invalid option limits")
		}
		if err := c.applyLimits(common.Options(m)); err != nil {
			return nil, err
		}
	}
	if opts.Has("decoder") {
		m, err := cast.ToStringMapE(opts["decoder"])
		if err != nil {
			return nil, errors.Wrap(err, "htp: invalid option decoder")
		}
		if err := c.applyDecoder(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Config) applyLimits(opts common.Options) error {
	errs := []error{
		setOption(opts, "response_decompression_layer_limit", opts.GetInt, &c.ResponseDecompressionLayerLimit),
		setOption(opts, "compression_bomb_limit", opts.GetInt64, &c.CompressionBombLimit),
		setOption(opts, "compression_bomb_ratio", opts.GetInt64, &c.CompressionBombRatio),
		setOption(opts, "compression_time_limit_us", opts.GetDuration, &c.CompressionTimeLimit),
		setOption(opts, "lzma_memlimit", opts.GetInt, &c.LzmaMemLimit),
		setOption(opts, "extract_request_files", opts.GetBool, &c.ExtractRequestFiles),
		setOption(opts, "extract_request_files_limit", opts.GetInt, &c.ExtractRequestFilesLimit),
		setOption(opts, "tmpdir", opts.GetString, &c.TmpDir),
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyDecoder(m map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &c.Decoder,
	})
	if err != nil {
		return errors.Wrap(err, "htp: create decoder config decoder")
	}
	if err := dec.Decode(m); err != nil {
		return errors.Wrap(err, "htp: decode decoder options")
	}

	if v, ok := m["url_encoding_invalid_handling"]; ok {
		h, err := decoder.ParseInvalidHandling(cast.ToString(v))
		if err != nil {
			return err
		}
		c.Decoder.URLEncodingInvalidHandling = h
	}
	return nil
}
