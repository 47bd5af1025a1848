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

package zerocopy

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/packetd/htp/common"
)

func TestBufferRead(t *testing.T) {
	n := 64
	buf := NewBuffer(bytes.Repeat([]byte("a"), n*common.ReadWriteBlockSize+10))

	for i := 0; i < n; i++ {
		b, err := buf.Read(common.ReadWriteBlockSize)
		assert.NoError(t, err)
		assert.Len(t, b, common.ReadWriteBlockSize)
	}
	assert.Equal(t, 10, buf.Len())

	b, err := buf.Read(common.ReadWriteBlockSize)
	assert.NoError(t, err)
	assert.Len(t, b, 10)

	_, err = buf.Read(1)
	assert.Equal(t, io.EOF, err)
}

func TestBufferReset(t *testing.T) {
	buf := NewBuffer([]byte("GET / HTTP/1.1\r\n"))
	b, err := buf.Read(4)
	assert.NoError(t, err)
	assert.Equal(t, "GET ", string(b))

	buf.Reset([]byte("Host: a\r\n"))
	assert.Equal(t, 9, buf.Len())
	b, err = buf.Read(buf.Len())
	assert.NoError(t, err)
	assert.Equal(t, "Host: a\r\n", string(b))
}

func TestBufferClose(t *testing.T) {
	buf := NewBuffer(bytes.Repeat([]byte("a"), 1024))
	buf.Close()
	assert.Zero(t, buf.Len())

	_, err := buf.Read(1)
	assert.Equal(t, io.EOF, err)
}

func TestBufferReadZero(t *testing.T) {
	buf := NewBuffer([]byte("abc"))
	b, err := buf.Read(0)
	assert.NoError(t, err)
	assert.Nil(t, b)
	assert.Equal(t, 3, buf.Len())
}

func BenchmarkZeroCopyBuffer(b *testing.B) {
	data := bytes.Repeat([]byte("a"), 64<<10)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		buf := NewBuffer(nil)
		for pb.Next() {
			buf.Reset(data)
			for {
				if _, err := buf.Read(common.ReadWriteBlockSize); err != nil {
					break
				}
			}
		}
	})
}
