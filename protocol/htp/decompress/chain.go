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
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

var (
	// ErrBomb 输出与输入的比例以及输出总量同时超过阈值
	ErrBomb = errors.New("decompress: compression bomb detected")

	// ErrTimeLimit 累计解压耗时超过阈值
	ErrTimeLimit = errors.New("decompress: time limit exceeded")
)

// Limits 解压链的防护阈值
type Limits struct {
	LayerLimit int           // 最大解压层数 <= 0 表示不限制
	BombLimit  int64         // 输出字节数阈值
	BombRatio  int64         // 输出/输入比例阈值
	TimeLimit  time.Duration // 累计解压耗时阈值 <= 0 表示不限制
	Options    Options
}

// Chain 多层解压链
//
// Content-Encoding 中的编码按应用顺序排列 解压时需要逆序进行
// 最外层接收原始数据 最内层的输出交给 sink
type Chain struct {
	layers    []Decompressor
	encodings []Encoding
	limits    Limits
	sink      Sink

	in      int64
	out     int64
	elapsed time.Duration
	now     func() time.Time
}

// NewChain 根据编码列表构建解压链
//
// 超出 LayerLimit 的内层编码会被忽略 truncated 表示是否发生了截断
func NewChain(encodings []Encoding, limits Limits, sink Sink) (c *Chain, truncated bool, err error) {
	for _, enc := range encodings {
		if enc == EncodingUnknown || enc == EncodingNone {
			return nil, false, errors.Errorf("decompress: unsupported encoding %s", enc)
		}
	}
	if limits.LayerLimit > 0 && len(encodings) > limits.LayerLimit {
		// 保留最外层的编码 内层仍保持压缩状态
		encodings = encodings[len(encodings)-limits.LayerLimit:]
		truncated = true
	}

	c = &Chain{
		encodings: encodings,
		limits:    limits,
		sink:      sink,
		now:       time.Now,
	}

	// layers[0] 为最内层 (第一个编码) 其输出交给 sink
	next := c.output
	c.layers = make([]Decompressor, len(encodings))
	for i, enc := range encodings {
		d, err := New(enc, limits.Options, next)
		if err != nil {
			_ = c.Close()
			return nil, false, err
		}
		c.layers[i] = d
		next = d.Decompress
	}
	return c, truncated, nil
}

// Encodings 返回实际生效的编码
func (c *Chain) Encodings() []Encoding {
	return c.encodings
}

// In 已经喂入的压缩数据字节数
func (c *Chain) In() int64 {
	return c.in
}

// Out 已经输出的解压数据字节数
func (c *Chain) Out() int64 {
	return c.out
}

func (c *Chain) output(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	c.out += int64(len(p))
	if c.isBomb() {
		return ErrBomb
	}
	return c.sink(p)
}

func (c *Chain) isBomb() bool {
	l := c.limits
	if l.BombLimit <= 0 || l.BombRatio <= 0 {
		return false
	}
	return c.out > l.BombLimit && c.out > l.BombRatio*c.in
}

func (c *Chain) outer() Decompressor {
	return c.layers[len(c.layers)-1]
}

// Decompress 喂入一段压缩数据
func (c *Chain) Decompress(data []byte) error {
	if len(data) == 0 || len(c.layers) == 0 {
		return nil
	}
	c.in += int64(len(data))

	start := c.now()
	err := c.outer().Decompress(data)
	c.elapsed += c.now().Sub(start)
	if err != nil {
		return c.cause(err)
	}
	if c.limits.TimeLimit > 0 && c.elapsed > c.limits.TimeLimit {
		return ErrTimeLimit
	}
	return nil
}

// Finish 输入结束 由外向内依次刷新每一层
func (c *Chain) Finish() error {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if err := c.layers[i].Decompress(nil); err != nil {
			return c.cause(err)
		}
	}
	return nil
}

// cause 解压错误可能被多层包装 识别出防护类错误
func (c *Chain) cause(err error) error {
	switch {
	case errors.Is(err, ErrBomb):
		return ErrBomb
	case errors.Is(err, ErrTimeLimit):
		return ErrTimeLimit
	}
	return err
}

// Close 释放所有层的 goroutine
func (c *Chain) Close() error {
	var errs *multierror.Error
	for i := len(c.layers) - 1; i >= 0; i-- {
		if c.layers[i] == nil {
			continue
		}
		if err := c.layers[i].Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
