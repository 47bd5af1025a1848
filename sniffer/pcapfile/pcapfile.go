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

package pcapfile

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/packetd/htp/logger"
	"github.com/packetd/htp/sniffer"
)

const (
	Name = "pcapfile"
)

func init() {
	sniffer.Register(New, Name)
}

// pcapng 文件的 Section Header Block 类型
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

type fileSniffer struct {
	conf   *sniffer.Config
	filter *sniffer.Filter
	f      *os.File
	r      packetReader

	onTCPSegment sniffer.OnTCPSegment
	packets      atomic.Uint64
	drops        atomic.Uint64
}

// New 打开离线抓包文件 同时支持 pcap 与 pcapng 格式
func New(conf *sniffer.Config) (sniffer.Sniffer, error) {
	if conf.File == "" {
		return nil, errors.New("pcapfile: no file specified")
	}
	filter, err := conf.NewFilter()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(conf.File)
	if err != nil {
		return nil, errors.Wrapf(err, "pcapfile: open %s", conf.File)
	}
	r, err := newPacketReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "pcapfile: read %s", conf.File)
	}

	logger.Infof("sniffer add pcap file (%s), linkType=%s", conf.File, r.LinkType())
	return &fileSniffer{
		conf:   conf,
		filter: filter,
		f:      f,
		r:      r,
	}, nil
}

func newPacketReader(rd io.Reader) (packetReader, error) {
	br := bufio.NewReader(rd)
	magic, err := br.Peek(len(ngMagic))
	if err != nil {
		return nil, err
	}
	if string(magic) == string(ngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

func (fs *fileSniffer) Name() string {
	return Name + ": " + fs.conf.File
}

func (fs *fileSniffer) SetOnTCPSegment(f sniffer.OnTCPSegment) {
	fs.onTCPSegment = f
}

func (fs *fileSniffer) Run(ctx context.Context) error {
	linkType := fs.r.LinkType()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, ci, err := fs.r.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Infof("pcap file (%s) finished, packets=%d", fs.conf.File, fs.packets.Load())
				return nil
			}
			return errors.Wrapf(err, "pcapfile: read packet from %s", fs.conf.File)
		}
		fs.packets.Add(1)

		seg := sniffer.ParseTCPSegment(ci.Timestamp, linkType, data, fs.conf.IPv4Only)
		if seg == nil || !fs.filter.Match(seg.Tuple) {
			fs.drops.Add(1)
			continue
		}
		if fs.onTCPSegment != nil {
			fs.onTCPSegment(seg)
		}
	}
}

func (fs *fileSniffer) Stats() sniffer.Stats {
	return sniffer.Stats{
		Name:    fs.Name(),
		Packets: fs.packets.Load(),
		Drops:   fs.drops.Load(),
	}
}

func (fs *fileSniffer) Close() error {
	return fs.f.Close()
}
