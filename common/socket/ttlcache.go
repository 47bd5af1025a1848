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

package socket

import (
	"time"
)

// TTLCache 记录带过期时间的四元组
//
// 过期判断使用调用方传入的时间 回放抓包文件时即为数据包时间
// 过期条目在 Set 时顺带清理 没有后台协程
type TTLCache struct {
	set     map[Tuple]time.Time
	expired time.Duration
	lastGC  time.Time
}

func NewTTLCache(expired time.Duration) *TTLCache {
	return &TTLCache{
		set:     make(map[Tuple]time.Time),
		expired: expired,
	}
}

func (tc *TTLCache) Set(tuple Tuple, now time.Time) {
	tc.set[tuple] = now.Add(tc.expired)
	if now.Sub(tc.lastGC) >= tc.expired/2 {
		tc.gc(now)
	}
}

func (tc *TTLCache) Has(tuple Tuple, now time.Time) bool {
	v, ok := tc.set[tuple]
	if !ok {
		return false
	}
	return now.Before(v)
}

func (tc *TTLCache) Delete(tuple Tuple) {
	delete(tc.set, tuple)
}

func (tc *TTLCache) gc(now time.Time) {
	tc.lastGC = now
	for k, v := range tc.set {
		if now.After(v) {
			delete(tc.set, k)
		}
	}
}
