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
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound Job 或 Attempt 不存在；patch/append 对未知 id 是显式 not-found，不是崩溃
	ErrNotFound = errors.New("runstore: not found")
)

// JobPatch Job 的部分更新；nil 字段不变
type JobPatch struct {
	Status          *JobStatus
	RunID           *string
	CancelRequested *bool
	StartedAt       *time.Time
	FinishedAt      *time.Time
	Result          *WorkResult
	IncidentLocator *string
}

// AttemptPatch Attempt 的部分更新；Artifacts 合并进已有 map
type AttemptPatch struct {
	Status         *AttemptStatus
	FinishedAt     *time.Time
	Classification *Classification
	Remediation    *RemediationDecision
	Artifacts      map[string]string
}

// Store Job/Attempt/事件的权威存储；所有读操作返回深拷贝，所有变更串行化
type Store interface {
	// Put 写入新 Job；ID 为空时生成，返回最终 ID
	Put(ctx context.Context, job *Job) (string, error)
	// Get 按 ID 查询；不存在返回 ErrNotFound
	Get(ctx context.Context, jobID string) (*Job, error)
	// List 返回全部保留中的 Job，按创建时间倒序
	List(ctx context.Context) ([]*Job, error)
	// PatchJob 部分更新 Job 并返回更新后的拷贝；未知 id 返回 ErrNotFound
	PatchJob(ctx context.Context, jobID string, patch JobPatch) (*Job, error)
	// AppendAttempt 追加一条 Attempt；ID 为空时生成，返回写入后的拷贝
	AppendAttempt(ctx context.Context, jobID string, attempt Attempt) (*Attempt, error)
	// PatchAttempt 部分更新指定 Attempt
	PatchAttempt(ctx context.Context, jobID string, attemptID string, patch AttemptPatch) error
	// AppendEvent 追加事件并分配严格递增的 Index
	AppendEvent(ctx context.Context, jobID string, eventType EventType, payload any) (*Event, error)
	// ListEvents 返回 Index >= since 的保留事件及下次调用的游标；
	// 被保留上限丢弃的 Index 不会重现，调用方拿到的是大于游标的最老保留事件
	ListEvents(ctx context.Context, jobID string, since int64) ([]Event, int64, error)
}
