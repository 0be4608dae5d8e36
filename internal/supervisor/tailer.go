// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"context"
	"time"

	"runplane/internal/runstore"
)

const defaultTailInterval = 200 * time.Millisecond

// Tailer 轮询 Store 的事件游标，把单个 Job 的事件流变成 channel。
// 事件流在 Job 保留期间可重放；从终态事件之后不会再有新事件，
// 所以 Tail 在送出终态事件后主动关流，订阅者的 goroutine 有界。
type Tailer struct {
	store    runstore.Store
	interval time.Duration
}

// NewTailer 创建 Tailer；interval <= 0 使用默认轮询间隔
func NewTailer(store runstore.Store, interval time.Duration) *Tailer {
	if interval <= 0 {
		interval = defaultTailInterval
	}
	return &Tailer{store: store, interval: interval}
}

// Tail 从 from 游标开始订阅 jobID 的事件。返回的 channel 在
// ctx 取消、Job 被逐出、或终态事件送达后关闭。
func (t *Tailer) Tail(ctx context.Context, jobID string, from int64) <-chan runstore.Event {
	out := make(chan runstore.Event)
	go func() {
		defer close(out)
		cursor := from
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			events, next, err := t.store.ListEvents(ctx, jobID, cursor)
			if err != nil {
				return
			}
			cursor = next
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if terminalEvent(ev.Type) {
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func terminalEvent(t runstore.EventType) bool {
	return t == runstore.EventJobFinished || t == runstore.EventJobCancelled
}
