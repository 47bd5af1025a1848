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

package decompress

import (
	"io"

	"github.com/pkg/errors"

	"github.com/packetd/htp/internal/rescue"
)

// Sink 接收解压后的数据
type Sink func(p []byte) error

// Decompressor 流式解压器
//
// Decompress 每次喂入一段压缩数据 解压结果通过 Sink 同步输出
// 传入空数据表示输入结束 解压器需要输出剩余的全部内容
type Decompressor interface {
	Decompress(data []byte) error
	Close() error
}

// readerFactory 基于 io.Reader 构建解压流
type readerFactory func(r io.Reader) (io.Reader, error)

// pump 将 拉取式 的 io.Reader 解压流适配为 推送式 的 Decompressor
//
// 解压流运行在独立的 goroutine 中 feedReader 在数据耗尽时阻塞
// 调用方在 Decompress 中等待 goroutine 消费完所有输入后才返回
// 因此任意时刻只有一方在运行 Sink 的调用与 Decompress 的调用是串行的
type pump struct {
	in     chan []byte
	need   chan struct{}
	done   chan struct{}
	closed bool
	err    error
}

type feedReader struct {
	p       *pump
	cur     []byte
	started bool
}

func (r *feedReader) Read(b []byte) (int, error) {
	for len(r.cur) == 0 {
		if r.started {
			r.p.need <- struct{}{}
		}
		r.started = true

		data, ok := <-r.p.in
		if !ok {
			return 0, io.EOF
		}
		r.cur = data
	}

	n := copy(b, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

// sinkWriter 将解压输出转交给 Sink
type sinkWriter struct {
	sink Sink
}

func (w sinkWriter) Write(p []byte) (int, error) {
	if err := w.sink(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func newPump(name string, factory readerFactory, sink Sink) *pump {
	p := &pump{
		in:   make(chan []byte),
		need: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(p.done)
		defer rescue.HandleCrash()

		fr := &feedReader{p: p}
		r, err := factory(fr)
		if err != nil {
			p.err = errors.Wrapf(err, "decompress: init %s", name)
			return
		}
		if _, err := io.Copy(sinkWriter{sink: sink}, r); err != nil {
			p.err = errors.Wrapf(err, "decompress: %s", name)
		}
	}()
	return p
}

func (p *pump) Decompress(data []byte) error {
	if len(data) == 0 {
		return p.finish()
	}

	select {
	case <-p.done:
		return p.err
	case p.in <- data:
	}

	select {
	case <-p.done:
		return p.err
	case <-p.need:
		return nil
	}
}

func (p *pump) finish() error {
	if !p.closed {
		p.closed = true
		close(p.in)
	}
	for {
		select {
		case <-p.done:
			return p.err
		case <-p.need:
			// 关闭 in 之后 feedReader 仍可能在通知需要更多数据
		}
	}
}

func (p *pump) Close() error {
	err := p.finish()
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
