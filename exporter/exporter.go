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

package exporter

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/packetd/htp/confengine"
)

const (
	SinkerTransactions = "transactions"
	SinkerWebhook      = "webhook"
)

// Exporter 把完成的事务分发给所有启用的 Sinker
//
// Export 可以被多个协程并发调用
type Exporter struct {
	mut     sync.Mutex
	sinkers []Sinker
}

func New(conf *confengine.Config) (*Exporter, error) {
	var cfg Config
	if conf.Has("exporter") {
		if err := conf.UnpackChild("exporter", &cfg); err != nil {
			return nil, err
		}
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Exporter, error) {
	enabled := map[string]bool{
		SinkerTransactions: cfg.Transactions.Enabled,
		SinkerWebhook:      cfg.Webhook.Enabled,
	}

	exp := &Exporter{}
	for _, name := range []string{SinkerTransactions, SinkerWebhook} {
		if !enabled[name] {
			continue
		}
		f := Get(name)
		if f == nil {
			exp.Close()
			return nil, errors.Errorf("sinker (%s) not registered", name)
		}
		s, err := f(cfg)
		if err != nil {
			exp.Close()
			return nil, err
		}
		exp.sinkers = append(exp.sinkers, s)
	}
	return exp, nil
}

// Enabled 是否存在可用的 Sinker
func (e *Exporter) Enabled() bool {
	return len(e.sinkers) > 0
}

func (e *Exporter) Export(rec *Record) error {
	e.mut.Lock()
	defer e.mut.Unlock()

	var errs error
	for _, s := range e.sinkers {
		if err := s.Sink(rec); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "sink %s", s.Name()))
		}
	}
	return errs
}

func (e *Exporter) Close() error {
	e.mut.Lock()
	defer e.mut.Unlock()

	var errs error
	for _, s := range e.sinkers {
		if err := s.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	e.sinkers = nil
	return errs
}
