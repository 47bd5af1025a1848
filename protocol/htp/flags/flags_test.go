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

package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagsNames(t *testing.T) {
	var f Flags
	assert.Empty(t, f.String())

	f.Set(FieldFolded)
	f.Set(ProtocolExtraData)
	assert.Equal(t, "FIELD_FOLDED|PROTOCOL_EXTRA_DATA", f.String())
	assert.True(t, f.Has(FieldFolded|HostMissing))
	assert.False(t, f.Has(HostMissing))

	f.Unset(FieldFolded)
	assert.Equal(t, []string{"PROTOCOL_EXTRA_DATA"}, f.Names())
}

func TestFlagsNamesComplete(t *testing.T) {
	n := 0
	for f := Flags(1); f < flagEnd; f <<= 1 {
		n++
	}
	assert.Len(t, names, n)
	assert.True(t, HostInvalid.Has(HostUInvalid))
	assert.True(t, HostInvalid.Has(HostHInvalid))
}

func TestConnFlags(t *testing.T) {
	f := ConnPipelined | ConnHTTP09Extra
	assert.Equal(t, []string{"PIPELINED", "HTTP_0_9_EXTRA"}, f.Names())
	assert.Empty(t, ConnFlags(0).Names())
}
