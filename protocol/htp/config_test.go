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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/htp/common"
	"github.com/packetd/htp/protocol/htp/decoder"
)

func TestNewConfig(t *testing.T) {
	c := NewConfig()
	assert.Equal(t, PersonalityMinimal, c.Personality)
	assert.Equal(t, DefaultFieldLimit, c.FieldLimit)
	assert.True(t, c.ResponseDecompression)
	assert.False(t, c.RequestDecompression)
	assert.Equal(t, LogNotice, c.LogLevel)
	assert.NotNil(t, c.Hooks)

	cc := c.Clone()
	cc.FieldLimit = 1
	assert.Equal(t, DefaultFieldLimit, c.FieldLimit)
	assert.Same(t, c.Hooks, cc.Hooks)
}

func TestParsePersonality(t *testing.T) {
	tests := []struct {
		input string
		want  Personality
		err   bool
	}{
		{input: "", want: PersonalityMinimal},
		{input: "IDS", want: PersonalityIDS},
		{input: "iis-7.5", want: PersonalityIIS75},
		{input: "IIS_5_1", want: PersonalityIIS51},
		{input: "apache", want: PersonalityApache2},
		{input: "apache_2", want: PersonalityApache2},
		{input: "nginx", err: true},
	}

	for _, tt := range tests {
		p, err := ParsePersonality(tt.input)
		if tt.err {
			assert.Error(t, err, tt.input)
			continue
		}
		assert.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, p, tt.input)
	}
	assert.Equal(t, "iis_7_5", PersonalityIIS75.String())
}

func TestPersonalityDecoderConfig(t *testing.T) {
	ids := PersonalityIDS.DecoderConfig()
	assert.True(t, ids.UEncodingDecode)
	assert.True(t, ids.RemoveDotSegments)

	iis5 := PersonalityIIS50.DecoderConfig()
	assert.Equal(t, decoder.ProcessInvalid, iis5.URLEncodingInvalidHandling)
	assert.True(t, iis5.BackslashConvertSlashes)

	apache := PersonalityApache2.DecoderConfig()
	assert.Equal(t, 400, apache.URLEncodingInvalidUnwanted)
	assert.False(t, apache.UEncodingDecode)

	minimal := PersonalityMinimal.DecoderConfig()
	assert.False(t, minimal.RemoveDotSegments)
}

func TestParseLogLevel(t *testing.T) {
	l, err := ParseLogLevel("WARN")
	assert.NoError(t, err)
	assert.Equal(t, LogWarning, l)

	l, err = ParseLogLevel("")
	assert.NoError(t, err)
	assert.Equal(t, LogNotice, l)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestConfigFromOptions(t *testing.T) {
	opts := common.Options{
		"personality":     "iis-7.5",
		"log_level":       "debug",
		"field_limit":     "2048",
		"tx_auto_destroy": true,
		"limits": map[string]any{
			"compression_bomb_limit":    10,
			"compression_time_limit_us": 500,
			"tmpdir":                    "/var/tmp/htp",
		},
		"decoder": map[string]any{
			"convert_lowercase":             "false",
			"url_encoding_invalid_handling": "remove_percent",
			"control_chars_unwanted":        403,
		},
	}

	c, err := ConfigFromOptions(opts)
	require.NoError(t, err)
	assert.Equal(t, PersonalityIIS75, c.Personality)
	assert.Equal(t, LogDebug, c.LogLevel)
	assert.Equal(t, 2048, c.FieldLimit)
	assert.True(t, c.TxAutoDestroy)
	assert.Equal(t, int64(10), c.CompressionBombLimit)
	assert.Equal(t, 500*time.Microsecond, c.CompressionTimeLimit)
	assert.Equal(t, "/var/tmp/htp", c.TmpDir)

	assert.False(t, c.Decoder.ConvertLowercase)
	assert.True(t, c.Decoder.BackslashConvertSlashes)
	assert.Equal(t, decoder.RemovePercent, c.Decoder.URLEncodingInvalidHandling)
	assert.Equal(t, 403, c.Decoder.ControlCharsUnwanted)
}

func TestConfigFromOptionsErrors(t *testing.T) {
	tests := []common.Options{
		{"personality": "nginx"},
		{"log_level": "loud"},
		{"field_limit": "abc"},
		{"limits": map[string]any{"compression_bomb_limit": "many"}},
		{"decoder": map[string]any{"url_encoding_invalid_handling": "drop"}},
		{"limits": "nope"},
	}

	for _, opts := range tests {
		_, err := ConfigFromOptions(opts)
		assert.Error(t, err, "%v", opts)
	}
}
