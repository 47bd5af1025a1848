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

package splitio

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  [][]byte
	}{
		{
			name:  "EmptyInput",
			input: []byte{},
			want:  nil,
		},
		{
			name:  "SingleLineWithoutLF",
			input: []byte("hello world"),
			want: [][]byte{
				[]byte("hello world"),
			},
		},
		{
			name:  "MixedLineEndings",
			input: []byte("unix\nwindows\r\nmac\r"),
			want: [][]byte{
				[]byte("unix\n"),
				[]byte("windows\r\n"),
				[]byte("mac\r"),
			},
		},
		{
			name:  "ConsecutiveLFs",
			input: []byte("\n\n\n"),
			want: [][]byte{
				[]byte("\n"),
				[]byte("\n"),
				[]byte("\n"),
			},
		},
		{
			name:  "HTTPRequest",
			input: []byte("GET / HTTP/1.1\r\nHost: a\r\n\r\n"),
			want: [][]byte{
				[]byte("GET / HTTP/1.1\r\n"),
				[]byte("Host: a\r\n"),
				[]byte("\r\n"),
			},
		},
		{
			name:  "BinaryData",
			input: []byte{0x00, 0x0A, 0xFF, 0x0A, 0x0D},
			want: [][]byte{
				{0x00, 0x0A},
				{0xFF, 0x0A},
				{0x0D},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.input, ModeLines))
		})
	}
}

func TestSplitSize(t *testing.T) {
	chunks := Split([]byte("abcdefg"), ModeSize(3))
	assert.Equal(t, [][]byte{[]byte("abc"), []byte("def"), []byte("g")}, chunks)

	chunks = Split([]byte("abc"), ModeSize(10))
	assert.Equal(t, [][]byte{[]byte("abc")}, chunks)
}

func TestSplitNone(t *testing.T) {
	chunks := Split([]byte("a\nb\n"), ModeNone)
	assert.Equal(t, [][]byte{[]byte("a\nb\n")}, chunks)
}

func TestScannerOffset(t *testing.T) {
	s := NewScanner([]byte("ab\ncd\n"), ModeLines)
	var offsets []int
	for s.Scan() {
		offsets = append(offsets, s.Offset())
	}
	assert.Equal(t, []int{0, 3}, offsets)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
		str   string
		err   bool
	}{
		{input: "", want: ModeNone, str: "none"},
		{input: "None", want: ModeNone, str: "none"},
		{input: "lines", want: ModeLines, str: "lines"},
		{input: "16", want: ModeSize(16), str: "16"},
		{input: "0", err: true},
		{input: "-1", err: true},
		{input: "bytes", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, err := ParseMode(tt.input)
			if tt.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, m)
			assert.Equal(t, tt.str, m.String())
		})
	}
}

func BenchmarkScannerLines(b *testing.B) {
	data := []byte(strings.Repeat("Header-Name: some header value\r\n", 64))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s := NewScanner(data, ModeLines)
		for s.Scan() {
			_ = s.Bytes()
		}
	}
}

func BenchmarkBufioScanner(b *testing.B) {
	data := []byte(strings.Repeat("Header-Name: some header value\r\n", 64))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s := bufio.NewScanner(bytes.NewReader(data))
		for s.Scan() {
			_ = s.Bytes()
		}
	}
}
