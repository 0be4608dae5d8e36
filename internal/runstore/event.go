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

package runstore

import (
	"encoding/json"
	"time"
)

// EventType 任务事件类型；外部观察者通过事件流重建 Job 进度
type EventType string

const (
	EventJobRunning          EventType = "job.running"
	EventAttemptStarted      EventType = "attempt.started"
	EventAttemptSucceeded    EventType = "attempt.succeeded"
	EventAttemptClassified   EventType = "attempt.classified"
	EventAttemptRemediated   EventType = "attempt.remediated"
	EventAttemptRerunPlanned EventType = "attempt.rerun_scheduled"
	EventAttemptCancelled    EventType = "attempt.cancelled"
	EventJobCancelled        EventType = "job.cancelled"
	EventJobIncident         EventType = "job.incident"
	EventJobFinished         EventType = "job.finished"
)

// Event 单条不可变事件；Index 按 Job 从 0 严格递增，等于追加顺序。
// 事件在 Job 保留期间不会被改写；超过保留上限时最老的事件被丢弃，但 Index 不复用。
type Event struct {
	Index     int64           `json:"index"`
	JobID     string          `json:"job_id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (e Event) clone() Event {
	cp := e
	if len(e.Payload) > 0 {
		cp.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	return cp
}
