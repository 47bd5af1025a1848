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

package bstr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesWrite(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		inputs   [][]byte
		expected []byte
	}{
		{
			name:     "Empty write",
			size:     10,
			inputs:   [][]byte{},
			expected: nil,
		},
		{
			name:     "Single write within capacity",
			size:     10,
			inputs:   [][]byte{[]byte("hello")},
			expected: []byte("hello"),
		},
		{
			name:     "Single write exceeds capacity",
			size:     5,
			inputs:   [][]byte{[]byte("helloworld")},
			expected: []byte("hello"),
		},
		{
			name:     "Multiple inputs exceed capacity",
			size:     8,
			inputs:   [][]byte{[]byte("hello"), []byte("world")},
			expected: []byte("hellowor"),
		},
		{
			name:     "Unlimited",
			size:     0,
			inputs:   [][]byte{[]byte("hello"), []byte("world")},
			expected: []byte("helloworld"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.size)
			for _, input := range tt.inputs {
				b.Write(input)
			}
			assert.Equal(t, tt.expected, b.Bytes())
		})
	}
}

func TestWrap(t *testing.T) {
	b := Wrap([]byte("Host"))
	assert.Equal(t, 0, b.Write([]byte("x")))
	assert.True(t, b.EqualFold("host"))
	b.ToLower()
	assert.Equal(t, "Host", b.Text())
}

func TestFold(t *testing.T) {
	assert.True(t, EqualFold([]byte("Content-Length"), "content-length"))
	assert.False(t, EqualFold([]byte("Content-Length"), "content-lengt"))
	assert.True(t, HasPrefixFold([]byte("MULTIPART/form-data"), "multipart/"))
	assert.Equal(t, 8, IndexFold([]byte("gzip, x-DeFlate"), "deflate"))
	assert.Equal(t, -1, IndexFold([]byte("gzip"), "deflate"))
}

func TestTrim(t *testing.T) {
	assert.Equal(t, []byte("a b"), TrimSpace([]byte(" \t a b \r\n")))
	assert.Equal(t, []byte("abc"), Chomp([]byte("abc\r\n")))
	assert.Equal(t, []byte("abc"), Chomp([]byte("abc\n\r")))

	p := []byte("AbC")
	ToLower(p)
	assert.Equal(t, []byte("abc"), p)
	assert.False(t, HasUpper(p))
}
