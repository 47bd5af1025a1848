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

package socket

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTuple(src string, srcPort Port, dst string, dstPort Port) Tuple {
	conv := func(s string) IPV {
		ip := net.ParseIP(s)
		if ip.To4() != nil {
			return ToIPV4(ip)
		}
		return ToIPV6(ip)
	}
	return Tuple{SrcIP: conv(src), SrcPort: srcPort, DstIP: conv(dst), DstPort: dstPort}
}

func TestIPV(t *testing.T) {
	v4 := ToIPV4(net.ParseIP("192.168.1.1"))
	assert.Equal(t, V4, v4.Version)
	assert.Equal(t, "192.168.1.1", v4.String())
	assert.True(t, v4.NetIP().Equal(net.ParseIP("192.168.1.1")))

	v6 := ToIPV6(net.ParseIP("fe80::1"))
	assert.Equal(t, V6, v6.Version)
	assert.Equal(t, "fe80::1", v6.String())
}

func TestTupleCanonical(t *testing.T) {
	a := newTuple("10.0.0.1", 40000, "10.0.0.2", 80)
	b := a.Mirror()

	assert.Equal(t, "10.0.0.2:80 > 10.0.0.1:40000", b.String())
	assert.Equal(t, a.Canonical(), b.Canonical())
	assert.Equal(t, a.Key(), a.Canonical().Key())
	assert.NotEqual(t, a.Key(), b.Key())

	same := newTuple("10.0.0.1", 80, "10.0.0.1", 40000)
	assert.Equal(t, same.Canonical(), same.Mirror().Canonical())
}

func TestTCPSegment(t *testing.T) {
	seg := TCPSegment{
		Tuple:   newTuple("10.0.0.1", 40000, "10.0.0.2", 80),
		SYN:     true,
		Seq:     7,
		Payload: []byte("abc"),
	}
	assert.True(t, seg.IsHandshake())
	assert.Equal(t, seg.Tuple, seg.SocketTuple())
	assert.Equal(t, "stream 10.0.0.1:40000 > 10.0.0.2:80 seq: 7 recv 3 bytes", seg.String())

	seg.ACK = true
	assert.False(t, seg.IsHandshake())
}

func TestTTLCache(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tc := NewTTLCache(time.Minute)
	a := newTuple("10.0.0.1", 40000, "10.0.0.2", 80)
	b := newTuple("10.0.0.1", 40001, "10.0.0.2", 80)

	tc.Set(a, now)
	assert.True(t, tc.Has(a, now.Add(30*time.Second)))
	assert.False(t, tc.Has(a, now.Add(2*time.Minute)))
	assert.False(t, tc.Has(b, now))

	// 写入 b 时顺带清理已经过期的 a
	tc.Set(b, now.Add(2*time.Minute))
	_, ok := tc.set[a]
	assert.False(t, ok)
	assert.True(t, tc.Has(b, now.Add(2*time.Minute)))

	tc.Delete(b)
	assert.False(t, tc.Has(b, now.Add(2*time.Minute)))
}
