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

package urlencoded

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/htp/protocol/htp/flags"
)

type pair struct {
	name  string
	value string
}

func collect(p *Parser) []pair {
	var lst []pair
	for _, param := range p.Params() {
		lst = append(lst, pair{name: string(param.Name), value: string(param.Value)})
	}
	return lst
}

func TestParseComplete(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []pair
	}{
		{
			name:     "Empty",
			input:    "",
			expected: nil,
		},
		{
			name:     "Single",
			input:    "p=1",
			expected: []pair{{"p", "1"}},
		},
		{
			name:     "Multiple",
			input:    "a=1&b=2&a=3",
			expected: []pair{{"a", "1"}, {"b", "2"}, {"a", "3"}},
		},
		{
			name:     "Name only",
			input:    "p",
			expected: []pair{{"p", ""}},
		},
		{
			name:     "Empty key",
			input:    "=1&",
			expected: []pair{{"", "1"}},
		},
		{
			name:     "Empty pair",
			input:    "=",
			expected: []pair{{"", ""}},
		},
		{
			name:     "Only separators",
			input:    "&&",
			expected: []pair{{"", ""}},
		},
		{
			name:     "Decoded",
			input:    "q=a+b%21&x%3Dy=1",
			expected: []pair{{"q", "a b!"}, {"x=y", "1"}},
		},
		{
			name:     "Value with equals",
			input:    "a=b=c",
			expected: []pair{{"a", "b=c"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParseComplete(nil, []byte(tt.input))
			assert.Equal(t, tt.expected, collect(p))
			assert.True(t, p.Complete())
		})
	}
}

func TestParseChunks(t *testing.T) {
	input := "name=value&long%20name=x%41y&last=1"
	want := collect(ParseComplete(nil, []byte(input)))

	for i := 0; i <= len(input); i++ {
		p := New(nil)
		p.Parse([]byte(input[:i]))
		p.Parse([]byte(input[i:]))
		p.Finalize()
		require.Equal(t, want, collect(p), "split at %d", i)
	}
}

func TestParseOptions(t *testing.T) {
	p := ParseComplete(nil, []byte("a=%41;b=2"), WithSeparator(';'), WithoutDecode())
	assert.Equal(t, []pair{{"a", "%41"}, {"b", "2"}}, collect(p))

	v, ok := p.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "2", string(v))
	_, ok = p.Get("c")
	assert.False(t, ok)
}

func TestParseFlags(t *testing.T) {
	p := ParseComplete(nil, []byte("a=%zz&b=%00"))
	assert.True(t, p.Flags().Has(flags.URLEnInvalidEncoding))
	assert.True(t, p.Flags().Has(flags.URLEnEncodedNul))
}
