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
	"fmt"
	"net"
	"time"
)

const (
	// TCPMsl 最长报文周期 (Maximum Segment Lifetime)
	//
	// https://datatracker.ietf.org/doc/html/rfc9293#section-3.4.2-2
	// 已经关闭的链接在 2*MSL 内收到的重传数据包不会再创建新的链接
	TCPMsl = time.Minute
)

type Version uint8

const (
	V4 Version = iota
	V6
)

// IPV 定长的 IP 地址 可以直接作为 map key 使用
type IPV struct {
	IP      [net.IPv6len]byte
	Version Version
}

func ToIPV4(ip net.IP) IPV {
	var dst [net.IPv6len]byte
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	copy(dst[:], ip)
	return IPV{
		IP:      dst,
		Version: V4,
	}
}

func ToIPV6(ip net.IP) IPV {
	var dst [net.IPv6len]byte
	copy(dst[:], ip)
	return IPV{
		IP:      dst,
		Version: V6,
	}
}

func (ipv IPV) NetIP() net.IP {
	if ipv.Version == V4 {
		return ipv.IP[:net.IPv4len]
	}
	return ipv.IP[:]
}

func (ipv IPV) String() string {
	return ipv.NetIP().String()
}

type Port uint16

// Tuple TCP 四元组 Src 为数据包的发送方
type Tuple struct {
	SrcIP   IPV
	DstIP   IPV
	SrcPort Port
	DstPort Port
}

func (t Tuple) String() string {
	return fmt.Sprintf("%s:%d > %s:%d", t.SrcIP, t.SrcPort, t.DstIP, t.DstPort)
}

// Mirror 返回对端方向的四元组
func (t Tuple) Mirror() Tuple {
	return Tuple{
		SrcIP:   t.DstIP,
		DstIP:   t.SrcIP,
		SrcPort: t.DstPort,
		DstPort: t.SrcPort,
	}
}

// Canonical 返回与方向无关的四元组 同一条链接的两个方向返回相同的值
func (t Tuple) Canonical() Tuple {
	m := t.Mirror()
	if t.less(m) {
		return t
	}
	return m
}

func (t Tuple) less(o Tuple) bool {
	for i := 0; i < net.IPv6len; i++ {
		if t.SrcIP.IP[i] != o.SrcIP.IP[i] {
			return t.SrcIP.IP[i] < o.SrcIP.IP[i]
		}
	}
	return t.SrcPort <= o.SrcPort
}

// Key 返回四元组的字节表示 用于计算哈希
func (t Tuple) Key() []byte {
	b := make([]byte, 0, 2*net.IPv6len+6)
	b = append(b, t.SrcIP.IP[:]...)
	b = append(b, byte(t.SrcIP.Version), byte(t.SrcPort>>8), byte(t.SrcPort))
	b = append(b, t.DstIP.IP[:]...)
	b = append(b, byte(t.DstIP.Version), byte(t.DstPort>>8), byte(t.DstPort))
	return b
}
