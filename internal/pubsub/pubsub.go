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

package pubsub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Queue 订阅队列 队列已满时新消息会被丢弃
type Queue[T any] struct {
	id      string
	ch      chan T
	mut     sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func newQueue[T any](size int) *Queue[T] {
	if size <= 0 {
		size = 1
	}
	return &Queue[T]{
		id: uuid.NewString(),
		ch: make(chan T, size),
	}
}

func (q *Queue[T]) ID() string {
	return q.id
}

// PopTimeout 弹出一个元素 操作会 block 直到有元素 队列关闭或者超时
func (q *Queue[T]) PopTimeout(timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case data, ok := <-q.ch:
		return data, ok
	case <-timer.C:
		return zero, false
	}
}

func (q *Queue[T]) Push(data T) {
	q.mut.RLock()
	defer q.mut.RUnlock()

	if q.closed {
		return
	}
	select {
	case q.ch <- data:
	default:
		q.dropped.Add(1)
	}
}

// Dropped 因队列已满而丢弃的消息数量
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue[T]) close() {
	q.mut.Lock()
	defer q.mut.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// PubSub 把消息广播给所有订阅者 发布方不会被慢速订阅者阻塞
type PubSub[T any] struct {
	mut    sync.RWMutex
	queues map[string]*Queue[T]
}

func New[T any]() *PubSub[T] {
	return &PubSub[T]{
		queues: make(map[string]*Queue[T]),
	}
}

func (p *PubSub[T]) Num() int {
	p.mut.RLock()
	defer p.mut.RUnlock()

	return len(p.queues)
}

func (p *PubSub[T]) Subscribe(size int) *Queue[T] {
	p.mut.Lock()
	defer p.mut.Unlock()

	q := newQueue[T](size)
	p.queues[q.ID()] = q
	return q
}

func (p *PubSub[T]) Publish(msg T) {
	p.mut.RLock()
	defer p.mut.RUnlock()

	for _, q := range p.queues {
		q.Push(msg)
	}
}

// Unsubscribe 取消订阅并关闭队列 队列中剩余的消息仍然可以被读取
func (p *PubSub[T]) Unsubscribe(q *Queue[T]) {
	p.mut.Lock()
	delete(p.queues, q.ID())
	p.mut.Unlock()

	q.close()
}
