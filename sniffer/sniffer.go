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
	"context"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/packetd/htp/common/socket"
)

type OnTCPSegment func(seg *socket.TCPSegment)

type Stats struct {
	Name    string
	Packets uint64
	Drops   uint64
}

type Sniffer interface {
	// Name 返回 Sniffer 名称
	Name() string

	// SetOnTCPSegment 设置 OnTCPSegment 回调函数
	//
	// 回调中的 Payload 只在回调期间有效
	SetOnTCPSegment(f OnTCPSegment)

	// Run 读取数据包直至数据源结束或者 ctx 被取消
	Run(ctx context.Context) error

	// Stats 返回读取与丢弃的数据包数量
	Stats() Stats

	// Close 关闭 Sniffer 并释放关联资源
	Close() error
}

type CreateFunc func(conf *Config) (Sniffer, error)

var snifferFactory = map[string]CreateFunc{}

func Register(f CreateFunc, names ...string) {
	for _, name := range names {
		snifferFactory[name] = f
	}
}

func Get(name string) (CreateFunc, error) {
	f, ok := snifferFactory[name]
	if !ok {
		return nil, errors.Errorf("sniffer factory (%s) not found", name)
	}
	return f, nil
}

const defaultEngine = "pcapfile"

// NewWithConfig 按 Engine 创建 Sniffer 未指定时读取 pcap 文件
func NewWithConfig(cfg *Config) (Sniffer, error) {
	if cfg.Engine == "" {
		cfg.Engine = defaultEngine
	}

	f, err := Get(cfg.Engine)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

// ParseTCPSegment 从链路层数据中解析出 TCP 报文 非 TCP 数据包返回 nil
func ParseTCPSegment(ts time.Time, linkType layers.LinkType, b []byte, ipv4Only bool) *socket.TCPSegment {
	content, lyr, err := DecodeIPLayer(linkType, b, ipv4Only)
	if err != nil || lyr == nil {
		return nil
	}

	var tcp layers.TCP
	if err := tcp.DecodeFromBytes(content, gopacket.NilDecodeFeedback); err != nil {
		return nil
	}

	seg := &socket.TCPSegment{
		Time:    ts,
		SYN:     tcp.SYN,
		ACK:     tcp.ACK,
		FIN:     tcp.FIN,
		RST:     tcp.RST,
		Seq:     tcp.Seq,
		Payload: tcp.Payload,
	}
	seg.Tuple.SrcPort = socket.Port(tcp.SrcPort)
	seg.Tuple.DstPort = socket.Port(tcp.DstPort)

	switch ip := lyr.(type) {
	case *layers.IPv4:
		seg.Tuple.SrcIP = socket.ToIPV4(ip.SrcIP)
		seg.Tuple.DstIP = socket.ToIPV4(ip.DstIP)
	case *layers.IPv6:
		seg.Tuple.SrcIP = socket.ToIPV6(ip.SrcIP)
		seg.Tuple.DstIP = socket.ToIPV6(ip.DstIP)
	}
	return seg
}

// DecodeIPLayer 解析 IP 层 返回 IP 层负载
//
// 只处理 TCP 负载 分片的 IPv4 数据包不做重组
func DecodeIPLayer(linkType layers.LinkType, b []byte, ipv4Only bool) ([]byte, gopacket.Layer, error) {
	content, err := decodeLinkLayer(linkType, b)
	if err != nil {
		return nil, nil, err
	}

	var ipv4 layers.IPv4
	if err := ipv4.DecodeFromBytes(content, gopacket.NilDecodeFeedback); err == nil && ipv4.Version == 4 {
		if ipv4.Protocol != layers.IPProtocolTCP {
			return nil, nil, nil
		}
		return ipv4.Payload, &ipv4, nil
	}

	// 支持只处理 ipv4 数据包
	if ipv4Only {
		return nil, nil, nil
	}

	var ipv6 layers.IPv6
	if err := ipv6.DecodeFromBytes(content, gopacket.NilDecodeFeedback); err == nil {
		if ipv6.NextHeader != layers.IPProtocolTCP {
			return nil, nil, nil
		}
		return ipv6.Payload, &ipv6, nil
	}
	return nil, nil, nil
}

func decodeLinkLayer(linkType layers.LinkType, b []byte) ([]byte, error) {
	switch linkType {
	case layers.LinkTypeEthernet:
		var ether layers.Ethernet
		if err := ether.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		switch ether.EthernetType {
		case layers.EthernetTypeIPv4, layers.EthernetTypeIPv6:
			return ether.Payload, nil
		case layers.EthernetTypeDot1Q:
			var vlan layers.Dot1Q
			if err := vlan.DecodeFromBytes(ether.Payload, gopacket.NilDecodeFeedback); err != nil {
				return nil, err
			}
			return vlan.Payload, nil
		}
		return nil, errors.Errorf("unsupported ethernet type (%s)", ether.EthernetType)

	case layers.LinkTypeNull, layers.LinkTypeLoop:
		var lb layers.Loopback
		if err := lb.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		return lb.Payload, nil

	case layers.LinkTypeLinuxSLL:
		var sll layers.LinuxSLL
		if err := sll.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
			return nil, err
		}
		return sll.Payload, nil

	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
		return b, nil
	}
	return nil, errors.Errorf("unsupported link type (%s)", linkType)
}
