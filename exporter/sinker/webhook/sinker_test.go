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
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/packetd/htp/exporter"
)

type collector struct {
	mut      sync.Mutex
	bodies   [][]byte
	encoding []string
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	c.mut.Lock()
	c.bodies = append(c.bodies, b)
	c.encoding = append(c.encoding, r.Header.Get("Content-Encoding"))
	c.mut.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func newTestSinker(t *testing.T, url, compression string, batch int) exporter.Sinker {
	s, err := New(exporter.Config{
		Webhook: exporter.WebhookConfig{
			Enabled:     true,
			Endpoint:    url,
			Batch:       batch,
			Interval:    time.Hour,
			Compression: compression,
			Header:      map[string]string{"X-Token": "secret"},
		},
	})
	require.NoError(t, err)
	return s
}

func TestSinkBatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := &collector{}
	svr := httptest.NewServer(c)
	defer svr.Close()

	s := newTestSinker(t, svr.URL, "none", 2)
	require.NoError(t, s.Sink(&exporter.Record{ConnID: "a"}))
	require.NoError(t, s.Sink(&exporter.Record{ConnID: "b"}))
	require.NoError(t, s.Sink(&exporter.Record{ConnID: "c"}))
	require.NoError(t, s.Close())

	c.mut.Lock()
	defer c.mut.Unlock()
	require.Len(t, c.bodies, 2)
	assert.Equal(t, 2, bytes.Count(c.bodies[0], []byte("\n")))
	assert.Contains(t, string(c.bodies[1]), `"conn_id":"c"`)
	assert.Empty(t, c.encoding[0])
}

func TestSinkCompression(t *testing.T) {
	tests := []struct {
		compression string
		decode      func([]byte) ([]byte, error)
	}{
		{
			compression: "snappy",
			decode: func(b []byte) ([]byte, error) {
				return snappy.Decode(nil, b)
			},
		},
		{
			compression: "gzip",
			decode: func(b []byte) ([]byte, error) {
				r, err := gzip.NewReader(bytes.NewReader(b))
				if err != nil {
					return nil, err
				}
				return io.ReadAll(r)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.compression, func(t *testing.T) {
			c := &collector{}
			svr := httptest.NewServer(c)
			defer svr.Close()

			s := newTestSinker(t, svr.URL, tt.compression, 1)
			require.NoError(t, s.Sink(&exporter.Record{ConnID: "z"}))
			require.NoError(t, s.Close())

			c.mut.Lock()
			defer c.mut.Unlock()
			require.Len(t, c.bodies, 1)
			assert.Equal(t, tt.compression, c.encoding[0])
			b, err := tt.decode(c.bodies[0])
			require.NoError(t, err)
			assert.Contains(t, string(b), `"conn_id":"z"`)
		})
	}
}

func TestSinkServerError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer svr.Close()

	s := newTestSinker(t, svr.URL, "none", 1)
	assert.Error(t, s.Sink(&exporter.Record{ConnID: "x"}))
	assert.NoError(t, s.Close())
}
