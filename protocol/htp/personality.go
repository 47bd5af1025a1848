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
	"strings"

	"github.com/pkg/errors"

	"github.com/packetd/htp/protocol/htp/decoder"
)

// Personality 模拟特定服务端对畸形请求的解释方式
type Personality uint8

const (
	PersonalityMinimal Personality = iota
	PersonalityGeneric
	PersonalityIDS
	PersonalityIIS40
	PersonalityIIS50
	PersonalityIIS51
	PersonalityIIS60
	PersonalityIIS70
	PersonalityIIS75
	PersonalityApache2
)

var personalityNames = map[Personality]string{
	PersonalityMinimal: "minimal",
	PersonalityGeneric: "generic",
	PersonalityIDS:     "ids",
	PersonalityIIS40:   "iis_4_0",
	PersonalityIIS50:   "iis_5_0",
	PersonalityIIS51:   "iis_5_1",
	PersonalityIIS60:   "iis_6_0",
	PersonalityIIS70:   "iis_7_0",
	PersonalityIIS75:   "iis_7_5",
	PersonalityApache2: "apache_2",
}

func (p Personality) String() string {
	if s, ok := personalityNames[p]; ok {
		return s
	}
	return "unknown"
}

// ParsePersonality 名称忽略大小写 接受 IIS_7_5 / iis-7.5 等写法
func ParsePersonality(s string) (Personality, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	if name == "" {
		return PersonalityMinimal, nil
	}
	for p, n := range personalityNames {
		if n == name {
			return p, nil
		}
	}
	if name == "apache" {
		return PersonalityApache2, nil
	}
	return PersonalityMinimal, errors.Errorf("htp: unknown personality %q", s)
}

// DecoderConfig 返回该 personality 的解码策略预设
func (p Personality) DecoderConfig() decoder.Config {
	c := decoder.DefaultConfig()

	switch p {
	case PersonalityIDS:
		c.BackslashConvertSlashes = true
		c.PathSeparatorsDecode = true
		c.PathSeparatorsCompress = true
		c.UEncodingDecode = true
		c.UTF8ConvertBestFit = true
		c.ConvertLowercase = true
		c.RemoveDotSegments = true

	case PersonalityApache2:
		c.PathSeparatorsCompress = true
		c.URLEncodingInvalidHandling = decoder.PreservePercent
		c.URLEncodingInvalidUnwanted = 400
		c.UEncodingUnwanted = 400
		c.PathSeparatorsEncodedUnwanted = 404
		c.NulEncodedUnwanted = 404
		c.RemoveDotSegments = true

	case PersonalityIIS40, PersonalityIIS50, PersonalityIIS51:
		iisCommon(&c)
		c.URLEncodingInvalidHandling = decoder.ProcessInvalid
		c.UTF8ConvertBestFit = true
		c.NulRawTerminates = true

	case PersonalityIIS60:
		iisCommon(&c)
		c.URLEncodingInvalidHandling = decoder.ProcessInvalid
		c.UTF8ConvertBestFit = true
		c.UEncodingUnwanted = 400
		c.ControlCharsUnwanted = 400

	case PersonalityIIS70, PersonalityIIS75:
		iisCommon(&c)
		c.UEncodingDecode = false
		c.URLEncodingInvalidHandling = decoder.PreservePercent
		c.URLEncodingInvalidUnwanted = 400
		c.UEncodingUnwanted = 400
		c.ControlCharsUnwanted = 400
	}
	return c
}

// iisCommon IIS 系列共同的路径处理方式
func iisCommon(c *decoder.Config) {
	c.UEncodingDecode = true
	c.BackslashConvertSlashes = true
	c.PathSeparatorsDecode = true
	c.PathSeparatorsCompress = true
	c.ConvertLowercase = true
	c.RemoveDotSegments = true
}
