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
	"bytes"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/packetd/htp/common/socket"
	"github.com/packetd/htp/connstream"
	"github.com/packetd/htp/logger"
	"github.com/packetd/htp/protocol/htp"
	"github.com/packetd/htp/sniffer"
)

type connEntry struct {
	key     socket.Tuple // 方向无关的四元组
	conn    *connstream.Conn
	tracker *Tracker
}

// connPool 跟踪一个数据源中的所有 TCP 链接
//
// 链接以方向无关四元组的 xxhash 作为索引 不是并发安全的
type connPool struct {
	cfg    Config
	htpCfg *htp.Config
	filter *sniffer.Filter
	onTx   TxFunc

	conns     map[uint64]*connEntry
	closed    *socket.TTLCache
	lastSweep time.Time
}

func newConnPool(cfg Config, htpCfg *htp.Config, filter *sniffer.Filter, onTx TxFunc) *connPool {
	return &connPool{
		cfg:    cfg,
		htpCfg: htpCfg,
		filter: filter,
		onTx:   onTx,
		conns:  make(map[uint64]*connEntry),
		closed: socket.NewTTLCache(closedRetention),
	}
}

func connKey(st socket.Tuple) (uint64, socket.Tuple) {
	canonical := st.Canonical()
	return xxhash.Sum64(canonical.Key()), canonical
}

func (pool *connPool) Len() int {
	return len(pool.conns)
}

// OnSegment 处理一个 TCP 报文
func (pool *connPool) OnSegment(seg *socket.TCPSegment) {
	pool.sweep(seg.Time)

	key, canonical := connKey(seg.Tuple)
	e, ok := pool.conns[key]
	if ok && e.key != canonical {
		logger.Warnf("conn key collision between %s and %s", e.key, canonical)
		return
	}
	if !ok {
		if e = pool.create(key, canonical, seg); e == nil {
			return
		}
	}

	if err := e.conn.Write(seg); err != nil {
		logger.Debugf("failed to write segment %s: %v", seg, err)
	}
	// RST 之后另一方向不会再有数据
	if seg.RST || e.conn.IsClosed() {
		pool.remove(key, seg.Time)
		pool.closed.Set(canonical, seg.Time)
	}
}

func (pool *connPool) create(key uint64, canonical socket.Tuple, seg *socket.TCPSegment) *connEntry {
	// 链接关闭后的重传 或者中途出现的无数据报文
	if !seg.SYN && len(seg.Payload) == 0 {
		return nil
	}
	if pool.closed.Has(canonical, seg.Time) && !seg.IsHandshake() {
		return nil
	}
	pool.closed.Delete(canonical)

	if len(pool.conns) >= pool.cfg.GetMaxConns() {
		pool.evictOldest(seg.Time)
	}

	client := pool.decideClient(seg)
	t := NewTracker(pool.htpCfg, client, seg.Time, pool.onTx)
	e := &connEntry{
		key:     canonical,
		tracker: t,
		conn:    connstream.NewConn(client, requestSide{t: t}, responseSide{t: t}),
	}
	pool.conns[key] = e
	activeConns.Inc()
	return e
}

var httpPrefix = []byte("HTTP/")

// decideClient 判断链接的客户端方向
//
// 优先依据握手报文 其次依据配置的服务端地址 最后依据报文内容
func (pool *connPool) decideClient(seg *socket.TCPSegment) socket.Tuple {
	st := seg.Tuple
	switch {
	case seg.IsHandshake():
		return st
	case seg.SYN && seg.ACK:
		return st.Mirror()
	case pool.filter != nil && pool.filter.IsServer(st):
		return st
	case pool.filter != nil && pool.filter.IsServer(st.Mirror()):
		return st.Mirror()
	case bytes.HasPrefix(seg.Payload, httpPrefix):
		return st.Mirror()
	}
	return st
}

func (pool *connPool) remove(key uint64, ts time.Time) {
	e, ok := pool.conns[key]
	if !ok {
		return
	}
	delete(pool.conns, key)
	activeConns.Dec()
	e.tracker.Close(ts)

	for i, stats := range e.conn.Stats() {
		direction := "request"
		if i > 0 {
			direction = "response"
		}
		streamPackets.WithLabelValues(direction).Add(float64(stats.Stats.Packets))
		streamBytes.WithLabelValues(direction).Add(float64(stats.Stats.Bytes))
	}
}

func (pool *connPool) evictOldest(ts time.Time) {
	var oldest uint64
	var at time.Time
	for k, e := range pool.conns {
		if active := e.conn.ActiveAt(); at.IsZero() || active.Before(at) {
			oldest, at = k, active
		}
	}
	if !at.IsZero() {
		pool.remove(oldest, ts)
	}
}

// sweep 关闭长时间未活跃的链接
func (pool *connPool) sweep(now time.Time) {
	expired := pool.cfg.GetConnExpired()
	if now.Sub(pool.lastSweep) < expired/2 {
		return
	}
	pool.lastSweep = now

	for k, e := range pool.conns {
		if now.Sub(e.conn.ActiveAt()) > expired {
			pool.remove(k, now)
		}
	}
}

// CloseAll 关闭所有链接 ts 为零值时使用各链接最后活跃的时间
func (pool *connPool) CloseAll(ts time.Time) {
	for k, e := range pool.conns {
		at := ts
		if at.IsZero() {
			at = e.conn.ActiveAt()
		}
		pool.remove(k, at)
	}
}
