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
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxJobs         = 1000
	defaultMaxEventsPerJob = 1000
)

// RetentionConfig 保留上限：超过 MaxJobs 时按最早结束优先逐出整个 Job，
// 超过 MaxEventsPerJob 时丢弃该 Job 最老的事件（Index 不复用）
type RetentionConfig struct {
	MaxJobs         int `mapstructure:"max_jobs"`
	MaxEventsPerJob int `mapstructure:"max_events_per_job"`
}

type jobRecord struct {
	job       *Job
	events    []Event
	nextIndex int64
}

// memoryStore 内存实现：单把粗粒度锁足够，Job 之间互相独立且单 Job 事件量低
type memoryStore struct {
	mu        sync.Mutex
	byID      map[string]*jobRecord
	retention RetentionConfig
}

// NewMemoryStore 创建内存 Store；retention 的零值字段使用默认上限
func NewMemoryStore(retention RetentionConfig) Store {
	if retention.MaxJobs <= 0 {
		retention.MaxJobs = defaultMaxJobs
	}
	if retention.MaxEventsPerJob <= 0 {
		retention.MaxEventsPerJob = defaultMaxEventsPerJob
	}
	return &memoryStore{
		byID:      make(map[string]*jobRecord),
		retention: retention,
	}
}

func (s *memoryStore) Put(ctx context.Context, job *Job) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = "job-" + uuid.New().String()
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	s.byID[job.ID] = &jobRecord{job: job.Clone()}
	s.evictLocked()
	return job.ID, nil
}

func (s *memoryStore) Get(ctx context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.job.Clone(), nil
}

func (s *memoryStore) List(ctx context.Context) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r.job.Clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (s *memoryStore) PatchJob(ctx context.Context, jobID string, patch JobPatch) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	j := r.job
	if patch.Status != nil {
		j.Status = *patch.Status
	}
	if patch.RunID != nil {
		j.RunID = *patch.RunID
	}
	if patch.CancelRequested != nil {
		j.CancelRequested = *patch.CancelRequested
	}
	if patch.StartedAt != nil {
		j.StartedAt = *patch.StartedAt
	}
	if patch.FinishedAt != nil {
		j.FinishedAt = *patch.FinishedAt
	}
	if patch.Result != nil {
		j.Result = patch.Result.clone()
	}
	if patch.IncidentLocator != nil {
		j.IncidentLocator = *patch.IncidentLocator
	}
	j.UpdatedAt = time.Now()
	return j.Clone(), nil
}

func (s *memoryStore) AppendAttempt(ctx context.Context, jobID string, attempt Attempt) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if attempt.ID == "" {
		attempt.ID = "attempt-" + uuid.New().String()
	}
	r.job.Attempts = append(r.job.Attempts, *attempt.clone())
	r.job.UpdatedAt = time.Now()
	return attempt.clone(), nil
}

func (s *memoryStore) PatchAttempt(ctx context.Context, jobID string, attemptID string, patch AttemptPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	for i := range r.job.Attempts {
		a := &r.job.Attempts[i]
		if a.ID != attemptID {
			continue
		}
		if patch.Status != nil {
			a.Status = *patch.Status
		}
		if patch.FinishedAt != nil {
			a.FinishedAt = *patch.FinishedAt
		}
		if patch.Classification != nil {
			c := *patch.Classification
			a.Classification = &c
		}
		if patch.Remediation != nil {
			d := *patch.Remediation
			a.Remediation = &d
		}
		if len(patch.Artifacts) > 0 {
			if a.Artifacts == nil {
				a.Artifacts = make(map[string]string, len(patch.Artifacts))
			}
			for k, v := range patch.Artifacts {
				a.Artifacts[k] = v
			}
		}
		r.job.UpdatedAt = time.Now()
		return nil
	}
	return ErrNotFound
}

func (s *memoryStore) AppendEvent(ctx context.Context, jobID string, eventType EventType, payload any) (*Event, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal event payload: %w", err)
		}
		raw = b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	ev := Event{
		Index:     r.nextIndex,
		JobID:     jobID,
		Type:      eventType,
		Payload:   raw,
		CreatedAt: time.Now(),
	}
	r.nextIndex++
	r.events = append(r.events, ev)
	if n := len(r.events) - s.retention.MaxEventsPerJob; n > 0 {
		r.events = append(r.events[:0:0], r.events[n:]...)
	}
	return &ev, nil
}

func (s *memoryStore) ListEvents(ctx context.Context, jobID string, since int64) ([]Event, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[jobID]
	if !ok {
		return nil, since, ErrNotFound
	}
	next := since
	var out []Event
	for _, ev := range r.events {
		if ev.Index < since {
			continue
		}
		out = append(out, ev.clone())
		next = ev.Index + 1
	}
	return out, next, nil
}

// evictLocked 超过 MaxJobs 时逐出最早结束的终态 Job；
// 运行中的 Job 永不逐出，即使因此暂时超限
func (s *memoryStore) evictLocked() {
	for len(s.byID) > s.retention.MaxJobs {
		var victim string
		var oldest time.Time
		for id, r := range s.byID {
			if !r.job.Status.Terminal() {
				continue
			}
			if victim == "" || r.job.FinishedAt.Before(oldest) {
				victim = id
				oldest = r.job.FinishedAt
			}
		}
		if victim == "" {
			return
		}
		delete(s.byID, victim)
	}
}
