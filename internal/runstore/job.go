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

// JobStatus 任务状态
type JobStatus string

const (
	StatusQueued         JobStatus = "queued"
	StatusRunning        JobStatus = "running"
	StatusCancelling     JobStatus = "cancelling"
	StatusSucceeded      JobStatus = "succeeded"
	StatusNeedsAttention JobStatus = "needs_attention"
	StatusCancelled      JobStatus = "cancelled"
)

// Terminal 是否终态；finished_at 当且仅当终态时非零
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusNeedsAttention, StatusCancelled:
		return true
	}
	return false
}

// AttemptStatus 单次执行状态
type AttemptStatus string

const (
	AttemptStarted        AttemptStatus = "started"
	AttemptSucceeded      AttemptStatus = "succeeded"
	AttemptFailed         AttemptStatus = "failed"
	AttemptClassified     AttemptStatus = "classified"
	AttemptRemediated     AttemptStatus = "remediated"
	AttemptRerunScheduled AttemptStatus = "rerun_scheduled"
	AttemptCancelled      AttemptStatus = "cancelled"
)

// Classification 失败分类结果：类别 + 置信度 + 命中信号 + 摘要
type Classification struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Signals    []string `json:"signals,omitempty"`
	Summary    string   `json:"summary,omitempty"`
}

// RemediationDecision 修复目录的决策结果；Safe=false 表示不可自动重试，需升级人工
type RemediationDecision struct {
	Action   string `json:"action"`
	Strategy string `json:"strategy"`
	Safe     bool   `json:"safe"`
	Notes    string `json:"notes,omitempty"`
}

// WorkResult 不透明工作函数的结果：Unresolved 为空即成功
type WorkResult struct {
	Output     json.RawMessage   `json:"output,omitempty"`
	Unresolved []string          `json:"unresolved,omitempty"`
	Artifacts  map[string]string `json:"artifacts,omitempty"`
}

// Attempt Job 内的一次工作函数执行；同一 Job 的 Attempt 严格串行，按创建顺序排列
type Attempt struct {
	ID             string               `json:"id"`
	Index          int                  `json:"index"`
	Status         AttemptStatus        `json:"status"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at,omitzero"`
	Classification *Classification      `json:"classification,omitempty"`
	Remediation    *RemediationDecision `json:"remediation,omitempty"`
	// Artifacts 产物名 → Sink 定位符
	Artifacts map[string]string `json:"artifacts,omitempty"`
}

// Job 外部提交的工作单元；由 Supervisor 独占推进，只通过 Store 变更
type Job struct {
	ID              string          `json:"id"`
	Status          JobStatus       `json:"status"`
	RunID           string          `json:"run_id,omitempty"`
	Input           json.RawMessage `json:"input,omitempty"`
	CancelRequested bool            `json:"cancel_requested"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       time.Time       `json:"started_at,omitzero"`
	FinishedAt      time.Time       `json:"finished_at,omitzero"`
	Attempts        []Attempt       `json:"attempts,omitempty"`
	Result          *WorkResult     `json:"result,omitempty"`
	IncidentLocator string          `json:"incident_locator,omitempty"`
}

// Clone 深拷贝；Store 的所有读操作返回拷贝，调用方不可能改到共享状态
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if len(j.Input) > 0 {
		cp.Input = append(json.RawMessage(nil), j.Input...)
	}
	if j.Result != nil {
		cp.Result = j.Result.clone()
	}
	if len(j.Attempts) > 0 {
		cp.Attempts = make([]Attempt, len(j.Attempts))
		for i := range j.Attempts {
			cp.Attempts[i] = *j.Attempts[i].clone()
		}
	}
	return &cp
}

func (a *Attempt) clone() *Attempt {
	cp := *a
	if a.Classification != nil {
		c := *a.Classification
		c.Signals = append([]string(nil), a.Classification.Signals...)
		cp.Classification = &c
	}
	if a.Remediation != nil {
		r := *a.Remediation
		cp.Remediation = &r
	}
	if len(a.Artifacts) > 0 {
		cp.Artifacts = make(map[string]string, len(a.Artifacts))
		for k, v := range a.Artifacts {
			cp.Artifacts[k] = v
		}
	}
	return &cp
}

func (r *WorkResult) clone() *WorkResult {
	cp := *r
	if len(r.Output) > 0 {
		cp.Output = append(json.RawMessage(nil), r.Output...)
	}
	cp.Unresolved = append([]string(nil), r.Unresolved...)
	if len(r.Artifacts) > 0 {
		cp.Artifacts = make(map[string]string, len(r.Artifacts))
		for k, v := range r.Artifacts {
			cp.Artifacts[k] = v
		}
	}
	return &cp
}
