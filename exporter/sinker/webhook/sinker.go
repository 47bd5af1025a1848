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

package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/packetd/htp/exporter"
	"github.com/packetd/htp/internal/bufpool"
	"github.com/packetd/htp/internal/json"
	"github.com/packetd/htp/logger"
)

func init() {
	exporter.Register(exporter.SinkerWebhook, New)
}

// Sinker 缓存事务记录 达到批量大小或者定时器触发时以 JSON Lines 格式 POST 到远端
type Sinker struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mut     sync.Mutex
	pending []*exporter.Record

	cli *http.Client
	cfg *exporter.WebhookConfig
}

func New(conf exporter.Config) (exporter.Sinker, error) {
	cfg := &conf.Webhook
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cli := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sinker{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		cli:    cli,
	}
	s.wg.Add(1)
	go s.loopFlush()
	return s, nil
}

func (s *Sinker) Name() string {
	return exporter.SinkerWebhook
}

func (s *Sinker) Sink(rec *exporter.Record) error {
	s.mut.Lock()
	s.pending = append(s.pending, rec)
	full := len(s.pending) >= s.cfg.Batch
	s.mut.Unlock()

	if full {
		return s.flush()
	}
	return nil
}

func (s *Sinker) loopFlush() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			if err := s.flush(); err != nil {
				logger.Errorf("failed to flush webhook records: %v", err)
			}
		}
	}
}

func (s *Sinker) take() []*exporter.Record {
	s.mut.Lock()
	defer s.mut.Unlock()

	records := s.pending
	s.pending = nil
	return records
}

func (s *Sinker) flush() error {
	records := s.take()
	if len(records) == 0 {
		return nil
	}

	buf := bufpool.Acquire()
	defer bufpool.Release(buf)

	encoder := json.NewEncoder(buf)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return err
		}
	}

	body, err := s.compress(buf.Bytes())
	if err != nil {
		return err
	}
	return s.post(body)
}

func (s *Sinker) compress(b []byte) ([]byte, error) {
	switch s.cfg.Compression {
	case "snappy":
		return snappy.Encode(nil, b), nil

	case "gzip":
		var out bytes.Buffer
		w := gzip.NewWriter(&out)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}

	// 调用方会归还 b 的底层缓冲区
	return bytes.Clone(b), nil
}

func (s *Sinker) post(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if s.cfg.Compression != "none" {
		req.Header.Set("Content-Encoding", s.cfg.Compression)
	}
	for k, v := range s.cfg.Header {
		req.Header.Add(k, v)
	}

	rsp, err := s.cli.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	io.Copy(io.Discard, rsp.Body)

	if rsp.StatusCode >= 400 {
		return errors.Errorf("webhook responded with status_code: %d", rsp.StatusCode)
	}
	return nil
}

// Close 停止定时刷新并发送剩余的记录
func (s *Sinker) Close() error {
	s.cancel()
	s.wg.Wait()
	err := s.flush()
	s.cli.CloseIdleConnections()
	return err
}
