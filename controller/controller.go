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

package controller

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/packetd/htp/common"
	"github.com/packetd/htp/confengine"
	"github.com/packetd/htp/exporter"
	"github.com/packetd/htp/internal/json"
	"github.com/packetd/htp/internal/pubsub"
	"github.com/packetd/htp/internal/rescue"
	"github.com/packetd/htp/logger"
	"github.com/packetd/htp/protocol/htp"
	"github.com/packetd/htp/server"
	"github.com/packetd/htp/sniffer"
)

type Controller struct {
	ctx       context.Context
	cancel    context.CancelFunc
	buildInfo common.BuildInfo

	mut     sync.RWMutex
	cfg     Config
	snifCfg sniffer.Config
	htpCfg  *htp.Config

	exp   *exporter.Exporter
	svr   *server.Server
	txBus *pubsub.PubSub[[]byte]
}

func setupLogger(conf *confengine.Config) error {
	var opts logger.Options
	if err := conf.UnpackChild("logger", &opts); err != nil {
		return err
	}

	if opts.Filename == "" {
		opts.Filename = "htp.log"
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 10
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}

	logger.SetOptions(opts)
	return nil
}

// loadParserConfig 读取 htp 配置并注册事务回调
func loadParserConfig(conf *confengine.Config) (*htp.Config, error) {
	opts, err := conf.Options("htp")
	if err != nil {
		return nil, err
	}
	cfg, err := htp.ConfigFromOptions(opts)
	if err != nil {
		return nil, err
	}
	WatchTransactions(cfg)
	return cfg, nil
}

func New(conf *confengine.Config, buildInfo common.BuildInfo) (*Controller, error) {
	if err := setupLogger(conf); err != nil {
		return nil, err
	}

	htpCfg, err := loadParserConfig(conf)
	if err != nil {
		return nil, err
	}

	var snifCfg sniffer.Config
	if err := conf.UnpackChild("sniffer", &snifCfg); err != nil {
		return nil, err
	}
	if _, err := snifCfg.NewFilter(); err != nil {
		return nil, err
	}

	exp, err := exporter.New(conf)
	if err != nil {
		return nil, err
	}

	svr, err := server.New(conf)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := conf.UnpackChild("controller", &cfg); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		ctx:       ctx,
		cancel:    cancel,
		buildInfo: buildInfo,
		cfg:       cfg,
		snifCfg:   snifCfg,
		htpCfg:    htpCfg,
		exp:       exp,
		svr:       svr,
		txBus:     pubsub.New[[]byte](),
	}, nil
}

// Start 启动管理服务 未开启 server 时不做任何事情
func (c *Controller) Start() error {
	if c.svr == nil {
		return nil
	}

	c.setupServer()
	go func() {
		defer rescue.HandleCrash()
		err := c.svr.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("failed to start server: %v", err)
		}
	}()
	return nil
}

// Replay 并发回放 pcap 文件 每个文件拥有独立的链接表
func (c *Controller) Replay(ctx context.Context, files ...string) error {
	c.mut.RLock()
	cfg, snifCfg, htpCfg := c.cfg, c.snifCfg, c.htpCfg
	c.mut.RUnlock()

	var (
		wg   sync.WaitGroup
		mut  sync.Mutex
		errs error
	)
	sem := make(chan struct{}, common.Concurrency())
	for _, file := range files {
		sem <- struct{}{}
		wg.Add(1)
		go func(file string) {
			defer func() {
				<-sem
				wg.Done()
			}()

			fc := snifCfg
			fc.File = file
			err := rescue.Call(func() error {
				return c.replayFile(ctx, cfg, &fc, htpCfg)
			})
			if err != nil {
				mut.Lock()
				errs = multierror.Append(errs, errors.Wrapf(err, "replay %s", file))
				mut.Unlock()
			}
		}(file)
	}
	wg.Wait()
	return errs
}

func (c *Controller) replayFile(ctx context.Context, cfg Config, snifCfg *sniffer.Config, htpCfg *htp.Config) error {
	filter, err := snifCfg.NewFilter()
	if err != nil {
		return err
	}
	snif, err := sniffer.NewWithConfig(snifCfg)
	if err != nil {
		return err
	}
	defer snif.Close()

	pool := newConnPool(cfg, htpCfg, filter, c.onTransaction)
	snif.SetOnTCPSegment(pool.OnSegment)

	start := time.Now()
	err = snif.Run(ctx)
	pool.CloseAll(time.Time{})

	stats := snif.Stats()
	snifferReceivedPackets.WithLabelValues(stats.Name).Add(float64(stats.Packets))
	snifferDroppedPackets.WithLabelValues(stats.Name).Add(float64(stats.Drops))
	logger.Infof("replay %s finished in %s, packets=%d drops=%d", snifCfg.File, time.Since(start), stats.Packets, stats.Drops)
	return err
}

func (c *Controller) onTransaction(conn *htp.Connection, tx *htp.Transaction, complete bool) {
	exportedTransactions.WithLabelValues(strconv.FormatBool(complete)).Inc()

	rec := exporter.NewRecord(conn, tx)
	if c.exp.Enabled() {
		if err := c.exp.Export(rec); err != nil {
			logger.Warnf("failed to export transaction (%s#%d): %v", rec.ConnID, rec.TxIndex, err)
		}
	}

	if c.txBus.Num() == 0 {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		logger.Warnf("failed to marshal transaction: %v", err)
		return
	}
	c.txBus.Publish(b)
}

// Reload 重载配置
//
// 仅重载 sniffer 过滤条件以及 htp 解析配置 对之后的回放生效
func (c *Controller) Reload(conf *confengine.Config) error {
	var snifCfg sniffer.Config
	if err := conf.UnpackChild("sniffer", &snifCfg); err != nil {
		return err
	}
	if _, err := snifCfg.NewFilter(); err != nil {
		return err
	}

	htpCfg, err := loadParserConfig(conf)
	if err != nil {
		return err
	}

	c.mut.Lock()
	defer c.mut.Unlock()
	c.snifCfg = snifCfg
	c.htpCfg = htpCfg
	return nil
}

// Context 在 Stop 之后被取消
func (c *Controller) Context() context.Context {
	return c.ctx
}

func (c *Controller) Stop() error {
	c.cancel()

	var errs error
	if c.svr != nil {
		if err := c.svr.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := c.exp.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}
