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
)

type Config struct {
	// ConnExpired 未活跃链接过期时间 以数据包时间计算
	ConnExpired time.Duration `config:"connExpired"`

	// MaxConns 同时跟踪的链接数量上限 超过后最早活跃的链接会被强制关闭
	MaxConns int `config:"maxConns"`

	// WatchQueueSize /watch 订阅队列长度
	WatchQueueSize int `config:"watchQueueSize"`
}

func (c Config) GetConnExpired() time.Duration {
	if c.ConnExpired < time.Second {
		return 5 * time.Minute
	}
	return c.ConnExpired
}

func (c Config) GetMaxConns() int {
	if c.MaxConns <= 0 {
		return 65536
	}
	return c.MaxConns
}

func (c Config) GetWatchQueueSize() int {
	if c.WatchQueueSize <= 0 {
		return 100
	}
	return c.WatchQueueSize
}

// closedRetention 已关闭链接的记录时长 期间迟到的数据包不会创建新链接
const closedRetention = 2 * socket.TCPMsl
