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

package htp

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/htp/logger"
)

// ConnParser 单条连接的解析器
//
// 不是并发安全的 同一个 ConnParser 只能在一个 goroutine 中使用
// 不同的 ConnParser 可以共享同一个 Config
type ConnParser struct {
	cfg  *Config
	conn *Connection
	req  cursor
	res  cursor

	// reqTxIndex 请求方向正在处理的事务 -1 表示没有
	reqTxIndex int

	// resTxIndex 响应方向正在或下一个要处理的事务
	resTxIndex int

	// resDataOtherAtTxEnd 当前响应结束后需要把控制权交还给请求方向
	resDataOtherAtTxEnd bool

	opened  bool
	log2zap logger.Logger
}

// NewConnParser 创建并返回 *ConnParser 实例 cfg 为 nil 时使用默认配置
func NewConnParser(cfg *Config) *ConnParser {
	if cfg == nil {
		cfg = NewConfig()
	}
	if cfg.Hooks == nil {
		cfg.Hooks = &Hooks{}
	}
	p := &ConnParser{
		cfg:        cfg,
		conn:       newConnection(),
		req:        newCursor(dirRequest),
		res:        newCursor(dirResponse),
		reqTxIndex: -1,
	}
	if cfg.LogToZap {
		p.log2zap = logger.With("conn", p.conn.ID)
	}
	return p
}

func (p *ConnParser) Conn() *Connection {
	return p.conn
}

func (p *ConnParser) Config() *Config {
	return p.cfg
}

// SetUserData 关联调用方数据 回调中可以通过 tx.Conn().UserData 取回
func (p *ConnParser) SetUserData(v any) {
	p.conn.UserData = v
}

func (p *ConnParser) UserData() any {
	return p.conn.UserData
}

// RequestTx 请求方向当前的事务
func (p *ConnParser) RequestTx() *Transaction {
	return p.conn.Tx(p.reqTxIndex)
}

// ResponseTx 响应方向当前的事务
func (p *ConnParser) ResponseTx() *Transaction {
	if p.res.state == StateIdle {
		return nil
	}
	return p.conn.Tx(p.resTxIndex)
}

func (p *ConnParser) RequestState() State {
	return p.req.state
}

func (p *ConnParser) ResponseState() State {
	return p.res.state
}

func (p *ConnParser) RequestStreamState() StreamState {
	return p.req.stream
}

func (p *ConnParser) ResponseStreamState() StreamState {
	return p.res.stream
}

// ReqDataConsumed 最近一次请求数据中已经消费的字节数
func (p *ConnParser) ReqDataConsumed() int {
	return p.req.pos
}

// ResDataConsumed 最近一次响应数据中已经消费的字节数
func (p *ConnParser) ResDataConsumed() int {
	return p.res.pos
}

func (p *ConnParser) cursorTx(c *cursor) *Transaction {
	if c.dir == dirRequest {
		return p.RequestTx()
	}
	return p.conn.Tx(p.resTxIndex)
}

// Open 打开连接 地址与端口均为可选
func (p *ConnParser) Open(clientAddr net.IP, clientPort int, serverAddr net.IP, serverPort int, ts time.Time) {
	if p.opened {
		p.log(nil, LogError, LogConnectionAlreadyOpen, "connection is already open")
		return
	}
	p.opened = true

	p.conn.ClientAddr = clientAddr
	p.conn.ClientPort = clientPort
	p.conn.ServerAddr = serverAddr
	p.conn.ServerPort = serverPort
	p.conn.OpenTime = ts
	p.req.stream = StreamOpen
	p.res.stream = StreamOpen
	connectionsTotal.Inc()
}

// Close 关闭连接 处理两个方向上缓存的数据并结束进行中的消息
func (p *ConnParser) Close(ts time.Time) {
	p.conn.CloseTime = ts
	if p.req.stream != StreamError && p.req.stream != StreamStop {
		p.req.stream = StreamClosed
	}
	if p.res.stream != StreamError && p.res.stream != StreamStop {
		p.res.stream = StreamClosed
	}

	p.feed(&p.req, ts, nil, 0)
	p.feed(&p.res, ts, nil, 0)

	for _, tx := range p.conn.txs {
		if tx == nil {
			continue
		}
		if err := tx.release(); err != nil {
			p.log(tx, LogWarning, LogUnknown, "release transaction: %v", err)
		}
	}
	p.req.release()
	p.res.release()
}

// DestroyTx 主动销毁事务 只能销毁已经完成的事务
func (p *ConnParser) DestroyTx(index int) error {
	tx := p.conn.Tx(index)
	if tx == nil {
		return errors.Errorf("htp: transaction %d not found", index)
	}
	if !tx.IsComplete() {
		return errors.Errorf("htp: transaction %d is not complete", index)
	}
	p.conn.removeTx(index)
	return tx.release()
}

func (p *ConnParser) RequestData(ts time.Time, data []byte) Status {
	return p.feed(&p.req, ts, data, 0)
}

// RequestGap 通知请求方向缺失了 n 字节
func (p *ConnParser) RequestGap(ts time.Time, n int) Status {
	return p.feed(&p.req, ts, nil, n)
}

func (p *ConnParser) ResponseData(ts time.Time, data []byte) Status {
	return p.feed(&p.res, ts, data, 0)
}

// ResponseGap 通知响应方向缺失了 n 字节
func (p *ConnParser) ResponseGap(ts time.Time, n int) Status {
	return p.feed(&p.res, ts, nil, n)
}

func (p *ConnParser) feed(c *cursor, ts time.Time, data []byte, gap int) Status {
	if !ts.IsZero() {
		c.ts = ts
	}

	switch c.stream {
	case StreamStop:
		return StatusStop
	case StreamError:
		return StatusError
	case StreamTunnel:
		if c.buf == nil {
			return StatusData
		}
		p.countBytes(c, len(data)+gap)
		c.reset(data, gap)
		c.consumeAll()
		return StatusData
	}

	if c.buf == nil {
		// Close 之后缓冲区已经归还
		return StatusError
	}

	closing := c.closed()
	if len(data) == 0 && gap <= 0 && !closing {
		p.log(p.cursorTx(c), LogWarning, LogZeroLengthDataChunks, "zero-length data chunks are not allowed")
		return StatusData
	}
	if c.stream == StreamNew {
		c.stream = StreamOpen
	}

	p.countBytes(c, len(data)+gap)
	c.reset(data, gap)

	for {
		if c.isGap && c.remaining() > 0 && !c.state.acceptsGap() {
			p.log(p.cursorTx(c), LogError, LogInvalidGap, "gap is not allowed in state %s", c.state)
			return p.fail(c)
		}

		st := p.dispatch(c)
		switch st {
		case StatusOK:
			if c.stream == StreamTunnel {
				c.consumeAll()
				return StatusData
			}
			continue

		case StatusData, StatusDataBuffer:
			if !closing {
				c.stream = StreamData
			}
			return StatusData

		case StatusDataOther:
			if c.isGap {
				p.log(p.cursorTx(c), LogError, LogInvalidGap, "gap is not allowed while waiting for the other side")
				return p.fail(c)
			}
			if !closing {
				c.stream = StreamDataOther
			}
			if c.remaining() > 0 {
				return StatusDataOther
			}
			return StatusData

		case StatusStop:
			c.stream = StreamStop
			return StatusStop
		}
		return p.fail(c)
	}
}

func (p *ConnParser) fail(c *cursor) Status {
	c.stream = StreamError
	streamErrorsTotal.WithLabelValues(c.dir.String()).Inc()
	return StatusError
}

func (p *ConnParser) countBytes(c *cursor, n int) {
	if c.dir == dirRequest {
		p.conn.InBytes = wrappingAdd(p.conn.InBytes, n)
		return
	}
	p.conn.OutBytes = wrappingAdd(p.conn.OutBytes, n)
}

func (p *ConnParser) dispatch(c *cursor) Status {
	if c.dir == dirRequest {
		switch c.state {
		case StateIdle:
			return p.reqIdle(c)
		case StateLine:
			return p.reqLine(c)
		case StateProtocol:
			return p.reqProtocol(c)
		case StateHeaders:
			return p.reqHeaders(c)
		case StateConnectCheck:
			return p.reqConnectCheck(c)
		case StateConnectWaitResponse:
			return p.reqConnectWaitResponse(c)
		case StateConnectProbeData:
			return p.reqConnectProbeData(c)
		case StateBodyDetermine:
			return p.reqBodyDetermine(c)
		case StateBodyChunkedLength:
			return p.bodyChunkedLength(c)
		case StateBodyChunkedData:
			return p.bodyChunkedData(c)
		case StateBodyChunkedDataEnd:
			return p.bodyChunkedDataEnd(c)
		case StateBodyIdentity:
			return p.reqBodyIdentity(c)
		case StateFinalize:
			return p.reqFinalize(c)
		case StateIgnoreDataAfterHTTP09:
			return p.reqIgnoreDataAfterHTTP09(c)
		}
	} else {
		switch c.state {
		case StateIdle:
			return p.resIdle(c)
		case StateLine:
			return p.resLine(c)
		case StateHeaders:
			return p.resHeaders(c)
		case StateBodyDetermine:
			return p.resBodyDetermine(c)
		case StateBodyChunkedLength:
			return p.bodyChunkedLength(c)
		case StateBodyChunkedData:
			return p.bodyChunkedData(c)
		case StateBodyChunkedDataEnd:
			return p.bodyChunkedDataEnd(c)
		case StateBodyIdentityCLKnown:
			return p.resBodyIdentityCLKnown(c)
		case StateBodyIdentityStreamClose:
			return p.resBodyIdentityStreamClose(c)
		case StateFinalize:
			return p.resFinalize(c)
		}
	}

	p.log(p.cursorTx(c), LogError, LogParserStateError, "invalid %s state %s", c.dir, c.state)
	return StatusError
}

// log 记录一条引擎日志 同一事务中每个编码只记录一次
func (p *ConnParser) log(tx *Transaction, level LogLevel, code LogCode, format string, args ...any) {
	if level > p.cfg.LogLevel {
		return
	}
	if tx != nil && !tx.markLogged(code) {
		return
	}

	msg := &Message{
		Level:   level,
		Code:    code,
		Msg:     fmt.Sprintf(format, args...),
		TxIndex: -1,
		Time:    time.Now(),
	}
	if tx != nil {
		msg.TxIndex = tx.Index
	}
	p.conn.Messages = append(p.conn.Messages, msg)
	logMessagesTotal.WithLabelValues(level.String()).Inc()

	if p.cfg.LogToZap {
		p.log2zap.Logf(zapLevel(level), "%s: %s (tx=%d)", code, msg.Msg, msg.TxIndex)
	}
	_ = p.cfg.Hooks.Log.Run(msg)
}

func zapLevel(l LogLevel) logger.Level {
	switch l {
	case LogError:
		return logger.LevelError
	case LogWarning:
		return logger.LevelWarn
	case LogNotice, LogInfo:
		return logger.LevelInfo
	}
	return logger.LevelDebug
}

// runTxHook 执行事务类回调并转换为解析器状态
func runTxHook(h *Hook[*Transaction], tx *Transaction) Status {
	return statusOf(h.Run(tx))
}

// checkTxComplete 请求与响应均已完成时触发 transaction_complete
func (p *ConnParser) checkTxComplete(tx *Transaction) Status {
	if tx.completed || !tx.IsComplete() {
		return StatusOK
	}
	tx.completed = true
	transactionsTotal.WithLabelValues(p.cfg.Personality.String()).Inc()

	st := runTxHook(&p.cfg.Hooks.TransactionComplete, tx)
	if p.cfg.TxAutoDestroy {
		p.conn.removeTx(tx.Index)
		if err := tx.release(); err != nil {
			p.log(nil, LogWarning, LogUnknown, "release transaction %d: %v", tx.Index, err)
		}
	}
	return st
}
