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

	"github.com/stretchr/testify/assert"
)

func TestFindEOL(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		response bool
		closed   bool
		want     eolMatch
	}{
		{
			name: "Request CRLF",
			b:    "abc\r\nx",
			want: eolMatch{n: 5, lineLen: 3, kind: eolCRLF, ok: true},
		},
		{
			name: "Request LF",
			b:    "abc\nx",
			want: eolMatch{n: 4, lineLen: 3, kind: eolLF, ok: true},
		},
		{
			name: "Request bare CR is data",
			b:    "a\rb\n",
			want: eolMatch{n: 4, lineLen: 3, kind: eolLF, ok: true},
		},
		{
			name: "Request incomplete",
			b:    "abc",
		},
		{
			name:   "Request incomplete closed",
			b:      "abc",
			closed: true,
			want:   eolMatch{n: 3, lineLen: 3, kind: eolNone, ok: true},
		},
		{
			name: "Split view",
			a:    "ab",
			b:    "c\nd",
			want: eolMatch{n: 4, lineLen: 3, kind: eolLF, ok: true},
		},
		{
			name:     "Response CRLF",
			b:        "abc\r\nx",
			response: true,
			want:     eolMatch{n: 5, lineLen: 3, kind: eolCRLF, ok: true},
		},
		{
			name:     "Response waits for lookahead",
			b:        "abc\r\n",
			response: true,
		},
		{
			name:     "Response lookahead closed",
			b:        "abc\r\n",
			response: true,
			closed:   true,
			want:     eolMatch{n: 5, lineLen: 3, kind: eolCRLF, ok: true},
		},
		{
			name:     "Response LF CR",
			b:        "abc\r\n\rX",
			response: true,
			want:     eolMatch{n: 6, lineLen: 3, kind: eolLFCR, ok: true},
		},
		{
			name:     "Response CRLF before empty line",
			b:        "abc\r\n\r\n",
			response: true,
			want:     eolMatch{n: 5, lineLen: 3, kind: eolCRLF, ok: true},
		},
		{
			name:     "Response bare CR",
			b:        "abc\rX",
			response: true,
			want:     eolMatch{n: 4, lineLen: 3, kind: eolCR, fold: true, ok: true},
		},
		{
			name:     "Response CR CR LF",
			b:        "abc\r\r\nX",
			response: true,
			want:     eolMatch{n: 6, lineLen: 3, kind: eolCR, ok: true},
		},
		{
			name:     "Response empty line",
			b:        "\r\n",
			response: true,
			want:     eolMatch{n: 2, lineLen: 0, kind: eolCRLF, ok: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findEOL([]byte(tt.a), []byte(tt.b), tt.response, tt.closed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCursorGap(t *testing.T) {
	c := newCursor(dirRequest)
	defer c.release()

	c.reset([]byte("abc"), 0)
	assert.Equal(t, 3, c.remaining())
	c.consume(2)
	assert.Equal(t, "c", string(c.avail()))

	c.reset(nil, 10)
	assert.True(t, c.isGap)
	assert.Nil(t, c.avail())
	c.consume(4)
	assert.Equal(t, 6, c.remaining())
	c.consumeAll()
	assert.Equal(t, 0, c.remaining())
}
