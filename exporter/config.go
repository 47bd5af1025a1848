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
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const defaultTimeout = 15 * time.Second

type Config struct {
	Transactions TransactionsConfig `config:"transactions"`
	Webhook      WebhookConfig      `config:"webhook"`
}

// TransactionsConfig 以 JSON Lines 格式输出事务
type TransactionsConfig struct {
	Enabled    bool   `config:"enabled"`
	Console    bool   `config:"console"`
	Filename   string `config:"filename"`
	MaxSize    int    `config:"maxSize"`
	MaxBackups int    `config:"maxBackups"`
	MaxAge     int    `config:"maxAge"`
}

func (tc *TransactionsConfig) Validate() {
	if tc.Filename == "" {
		tc.Filename = "transactions.log"
	}
	if tc.MaxSize <= 0 {
		tc.MaxSize = 100
	}
	if tc.MaxAge <= 0 {
		tc.MaxAge = 7
	}
	if tc.MaxBackups <= 0 {
		tc.MaxBackups = 10
	}
}

// WebhookConfig 将事务批量 POST 到远端地址
type WebhookConfig struct {
	Enabled     bool              `config:"enabled"`
	Endpoint    string            `config:"endpoint"`
	Header      map[string]string `config:"header"`
	Batch       int               `config:"batch"`
	Interval    time.Duration     `config:"interval"`
	Timeout     time.Duration     `config:"timeout"`
	Compression string            `config:"compression"` // none / gzip / snappy
}

func (wc *WebhookConfig) Validate() error {
	u, err := url.Parse(wc.Endpoint)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("unsupported webhook endpoint (%s)", wc.Endpoint)
	}

	switch wc.Compression {
	case "":
		wc.Compression = "none"
	case "none", "gzip", "snappy":
	default:
		return errors.Errorf("unsupported webhook compression (%s)", wc.Compression)
	}

	if wc.Batch <= 0 {
		wc.Batch = 100
	}
	if wc.Timeout <= 0 {
		wc.Timeout = defaultTimeout
	}
	if wc.Interval <= 0 {
		wc.Interval = 3 * time.Second
	}
	return nil
}
