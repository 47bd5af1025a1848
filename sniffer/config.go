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

package sniffer

import (
	"net"
	"strings"

	"github.com/pkg/errors"

	"github.com/packetd/htp/common/socket"
)

type Config struct {
	File     string   `config:"file"`
	Engine   string   `config:"engine"`
	IPv4Only bool     `config:"ipv4Only"`
	Hosts    []string `config:"hosts"`
	Ports    []uint16 `config:"ports"`
}

// Filter 按服务端地址与端口过滤数据包
//
// 未配置任何条件时所有 TCP 数据包都会通过
type Filter struct {
	hosts map[socket.IPV]struct{}
	ports map[socket.Port]struct{}
}

func (c Config) NewFilter() (*Filter, error) {
	f := &Filter{
		hosts: make(map[socket.IPV]struct{}),
		ports: make(map[socket.Port]struct{}),
	}
	for _, h := range c.Hosts {
		ip := net.ParseIP(strings.TrimSpace(h))
		if ip == nil {
			return nil, errors.Errorf("invalid host (%s)", h)
		}
		if ip.To4() != nil {
			f.hosts[socket.ToIPV4(ip)] = struct{}{}
		} else {
			f.hosts[socket.ToIPV6(ip)] = struct{}{}
		}
	}
	for _, p := range c.Ports {
		f.ports[socket.Port(p)] = struct{}{}
	}
	return f, nil
}

func (f *Filter) matchServer(ip socket.IPV, port socket.Port) bool {
	if len(f.hosts) > 0 {
		if _, ok := f.hosts[ip]; !ok {
			return false
		}
	}
	if len(f.ports) > 0 {
		if _, ok := f.ports[port]; !ok {
			return false
		}
	}
	return true
}

// Match 数据包任意一端满足服务端条件即可通过
func (f *Filter) Match(st socket.Tuple) bool {
	return f.matchServer(st.DstIP, st.DstPort) || f.matchServer(st.SrcIP, st.SrcPort)
}

// IsServer 判断数据包的目的端是否为服务端
//
// 仅在配置了过滤条件时有意义 无法判断时返回 false
func (f *Filter) IsServer(st socket.Tuple) bool {
	if len(f.hosts) == 0 && len(f.ports) == 0 {
		return false
	}
	return f.matchServer(st.DstIP, st.DstPort) && !f.matchServer(st.SrcIP, st.SrcPort)
}
