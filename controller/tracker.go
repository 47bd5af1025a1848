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
	"time"

	"github.com/packetd/htp/common/socket"
	"github.com/packetd/htp/internal/zerocopy"
	"github.com/packetd/htp/logger"
	"github.com/packetd/htp/protocol/htp"
)

// TxFunc 事务输出回调 complete 为 false 表示链接关闭时事务仍未完成
type TxFunc func(conn *htp.Connection, tx *htp.Transaction, complete bool)

// exported 标记已经输出过的事务
type exported struct{}

// WatchTransactions 在配置上注册事务完成回调 同一个配置只需要注册一次
//
// 回调通过 Connection.UserData 找到对应的 Tracker
func WatchTransactions(cfg *htp.Config) {
	cfg.Hooks.TransactionComplete.Register(func(tx *htp.Transaction) error {
		if t, ok := tx.Conn().UserData.(*Tracker); ok {
			t.emit(tx, true)
		}
		return nil
	})
}

// Tracker 驱动单条链接的 htp.ConnParser
//
// 解析器返回 DATA_OTHER 时 未消费的数据会被暂存
// 直到另一方向取得进展之后再重新投递
type Tracker struct {
	parser *htp.ConnParser
	onTx   TxFunc

	reqPending []byte
	resPending []byte
	reqTs      time.Time
	resTs      time.Time

	stopped bool
	closed  bool
}

// NewTracker 创建 Tracker 并打开链接 cfg 需要先经过 WatchTransactions 注册
func NewTracker(cfg *htp.Config, client socket.Tuple, ts time.Time, onTx TxFunc) *Tracker {
	t := &Tracker{
		parser: htp.NewConnParser(cfg),
		onTx:   onTx,
	}
	t.parser.SetUserData(t)

	server := client.Mirror()
	t.parser.Open(client.SrcIP.NetIP(), int(client.SrcPort), server.SrcIP.NetIP(), int(server.SrcPort), ts)
	return t
}

func (t *Tracker) Parser() *htp.ConnParser {
	return t.parser
}

func (t *Tracker) emit(tx *htp.Transaction, complete bool) {
	if tx.UserData != nil {
		return
	}
	tx.UserData = exported{}
	if t.onTx != nil {
		t.onTx(t.parser.Conn(), tx, complete)
	}
}

func (t *Tracker) check(dir string, st htp.Status) bool {
	switch st {
	case htp.StatusError, htp.StatusStop:
		if !t.stopped {
			logger.Debugf("conn (%s) %s stream stopped with status %s", t.parser.Conn().ID, dir, st)
		}
		t.stopped = true
		return false
	}
	return true
}

// RequestData 投递客户端数据
func (t *Tracker) RequestData(ts time.Time, b []byte) {
	if t.stopped || t.closed || len(b) == 0 {
		return
	}
	if len(t.reqPending) > 0 {
		t.reqPending = append(t.reqPending, b...)
		return
	}
	if t.feedRequest(ts, b) {
		t.drainResponse()
	}
}

// ResponseData 投递服务端数据
func (t *Tracker) ResponseData(ts time.Time, b []byte) {
	if t.stopped || t.closed || len(b) == 0 {
		return
	}
	if len(t.resPending) > 0 {
		t.resPending = append(t.resPending, b...)
		return
	}
	if t.feedResponse(ts, b) {
		t.drainRequest()
	}
}

// RequestGap 暂存的数据同样视为丢失
func (t *Tracker) RequestGap(ts time.Time, n int) {
	if t.stopped || t.closed {
		return
	}
	n += len(t.reqPending)
	t.reqPending = nil
	t.check("request", t.parser.RequestGap(ts, n))
}

func (t *Tracker) ResponseGap(ts time.Time, n int) {
	if t.stopped || t.closed {
		return
	}
	n += len(t.resPending)
	t.resPending = nil
	t.check("response", t.parser.ResponseGap(ts, n))
}

// feedRequest 返回请求方向是否消费了数据
func (t *Tracker) feedRequest(ts time.Time, b []byte) bool {
	st := t.parser.RequestData(ts, b)
	t.reqPending = nil
	if !t.check("request", st) {
		return false
	}

	consumed := len(b)
	if st == htp.StatusDataOther {
		consumed = t.parser.ReqDataConsumed()
		t.reqPending = append([]byte(nil), b[consumed:]...)
		t.reqTs = ts
	}
	return consumed > 0
}

func (t *Tracker) feedResponse(ts time.Time, b []byte) bool {
	st := t.parser.ResponseData(ts, b)
	t.resPending = nil
	if !t.check("response", st) {
		return false
	}

	consumed := len(b)
	if st == htp.StatusDataOther {
		consumed = t.parser.ResDataConsumed()
		t.resPending = append([]byte(nil), b[consumed:]...)
		t.resTs = ts
	}
	return consumed > 0
}

// drainRequest 响应方向取得进展后重新投递暂存的请求数据 两个方向交替直到都无法推进
func (t *Tracker) drainRequest() {
	for len(t.reqPending) > 0 && !t.stopped {
		if !t.feedRequest(t.reqTs, t.reqPending) || len(t.resPending) == 0 {
			return
		}
		if !t.feedResponse(t.resTs, t.resPending) {
			return
		}
	}
}

func (t *Tracker) drainResponse() {
	for len(t.resPending) > 0 && !t.stopped {
		if !t.feedResponse(t.resTs, t.resPending) || len(t.reqPending) == 0 {
			return
		}
		if !t.feedRequest(t.reqTs, t.reqPending) {
			return
		}
	}
}

// Close 关闭链接 并输出尚未完成的事务
func (t *Tracker) Close(ts time.Time) {
	if t.closed {
		return
	}
	t.closed = true
	t.parser.Close(ts)

	conn := t.parser.Conn()
	for _, tx := range conn.Transactions() {
		t.emit(tx, tx.IsComplete())
	}
}

// requestSide 与 responseSide 把 connstream 的字节流接入 Tracker
type requestSide struct{ t *Tracker }

func (s requestSide) OnData(ts time.Time, r zerocopy.Reader) {
	if b, err := r.Read(r.Len()); err == nil {
		s.t.RequestData(ts, b)
	}
}

func (s requestSide) OnGap(ts time.Time, n int) {
	streamGaps.Add(float64(n))
	s.t.RequestGap(ts, n)
}

// OnClose 两个方向都关闭之后由 connPool 统一关闭 Tracker
func (s requestSide) OnClose(time.Time) {}

type responseSide struct{ t *Tracker }

func (s responseSide) OnData(ts time.Time, r zerocopy.Reader) {
	if b, err := r.Read(r.Len()); err == nil {
		s.t.ResponseData(ts, b)
	}
}

func (s responseSide) OnGap(ts time.Time, n int) {
	streamGaps.Add(float64(n))
	s.t.ResponseGap(ts, n)
}

func (s responseSide) OnClose(time.Time) {}
