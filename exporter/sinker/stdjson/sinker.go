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

package stdjson

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/packetd/htp/exporter"
	"github.com/packetd/htp/internal/json"
)

func init() {
	exporter.Register(exporter.SinkerTransactions, New)
}

// Sinker 每个事务输出一行 JSON
type Sinker struct {
	wr      io.Writer
	closer  io.Closer
	encoder *json.Encoder
}

func New(conf exporter.Config) (exporter.Sinker, error) {
	cfg := &conf.Transactions
	cfg.Validate()

	if cfg.Console {
		return newSinker(os.Stdout, nil), nil
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		LocalTime:  true,
	}
	return newSinker(lj, lj), nil
}

func newSinker(wr io.Writer, closer io.Closer) *Sinker {
	return &Sinker{
		wr:      wr,
		closer:  closer,
		encoder: json.NewEncoder(wr),
	}
}

func (s *Sinker) Name() string {
	return exporter.SinkerTransactions
}

func (s *Sinker) Sink(rec *exporter.Record) error {
	return s.encoder.Encode(rec)
}

// Close 标准输出不关闭
func (s *Sinker) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
