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
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/packetd/htp/protocol/htp/flags"
)

// Connection 一条连接上按顺序排列的事务
//
// 事务编号连续递增 被销毁的事务仅把槽位置空 不影响其他事务的编号
type Connection struct {
	ID         string
	ClientAddr net.IP
	ClientPort int
	ServerAddr net.IP
	ServerPort int
	OpenTime   time.Time
	CloseTime  time.Time

	Flags    flags.ConnFlags
	InBytes  int64
	OutBytes int64

	// Messages 引擎产生的日志
	Messages []*Message

	UserData any

	txs []*Transaction
}

func newConnection() *Connection {
	return &Connection{
		ID:         uuid.NewString(),
		ClientPort: -1,
		ServerPort: -1,
	}
}

// TxCount 包括已经被销毁的事务
func (c *Connection) TxCount() int {
	return len(c.txs)
}

// Tx 返回指定编号的事务 越界或者已销毁时返回 nil
func (c *Connection) Tx(index int) *Transaction {
	if index < 0 || index >= len(c.txs) {
		return nil
	}
	return c.txs[index]
}

// Transactions 返回所有未被销毁的事务
func (c *Connection) Transactions() []*Transaction {
	txs := make([]*Transaction, 0, len(c.txs))
	for _, tx := range c.txs {
		if tx != nil {
			txs = append(txs, tx)
		}
	}
	return txs
}

func (c *Connection) createTx(cfg *Config) *Transaction {
	tx := newTransaction(c, cfg, len(c.txs))
	c.txs = append(c.txs, tx)
	return tx
}

func (c *Connection) removeTx(index int) *Transaction {
	tx := c.Tx(index)
	if tx != nil {
		c.txs[index] = nil
	}
	return tx
}

// wrappingAdd 计数器溢出时回绕
func wrappingAdd(v int64, n int) int64 {
	return int64(uint64(v) + uint64(n))
}
