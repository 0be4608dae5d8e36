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

import "time"

// Metrics 注入式指标出口；Supervisor 不触碰进程级全局计数器，
// 测试可以用自己的实现断言发出的指标
type Metrics interface {
	// JobFinished Job 到达终态（succeeded/needs_attention/cancelled）
	JobFinished(status string, elapsed time.Duration)
	// AttemptClassified 一次失败分类完成
	AttemptClassified(category string)
	// RemediationApplied 修复目录被咨询；applied 表示是否实际应用
	RemediationApplied(action string, applied bool)
	// SinkWriteFailed 产物写入失败（运维告警条件）
	SinkWriteFailed()
}

// NopMetrics 空实现
type NopMetrics struct{}

func (NopMetrics) JobFinished(string, time.Duration) {}
func (NopMetrics) AttemptClassified(string)          {}
func (NopMetrics) RemediationApplied(string, bool)   {}
func (NopMetrics) SinkWriteFailed()                  {}
