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

// Package remedy 失败类别到修复动作的静态决策表。
// 修复是允许清单而不是开放的代码执行：新增自动动作只能加表行，
// 不存在运行时注册，保证同一分类在任何部署下得到同一决策。
package remedy

import (
	"runplane/internal/classify"
	"runplane/internal/runstore"
)

// ApplyResult 应用修复决策的结果；Safe=false 的决策 Applied 恒为 false
type ApplyResult struct {
	Applied  bool   `json:"applied"`
	Action   string `json:"action"`
	Strategy string `json:"strategy"`
	Reason   string `json:"reason,omitempty"`
}

// manualAttention 不可自动修复类别的统一决策
var manualAttention = runstore.RemediationDecision{
	Action:   "manual_attention",
	Strategy: "escalate",
	Safe:     false,
	Notes:    "no safe automatic remediation for this category; requires human triage",
}

// table 固定决策表；product/automation/unknown 一律升级人工——
// 自动重试可能掩盖真实缺陷或自动化框架问题
var table = map[string]runstore.RemediationDecision{
	classify.CategoryInfra: {
		Action:   "rerun_after_backoff",
		Strategy: "bounded_backoff",
		Safe:     true,
		Notes:    "transient infrastructure failure; a delayed rerun usually clears it",
	},
	classify.CategoryEnv: {
		Action:   "reset_environment",
		Strategy: "reprovision_then_rerun",
		Safe:     true,
		Notes:    "environment drift; reset and rerun",
	},
	classify.CategoryData: {
		Action:   "refresh_fixtures",
		Strategy: "reseed_then_rerun",
		Safe:     true,
		Notes:    "stale or missing test data; refresh fixtures and rerun",
	},
	classify.CategoryFlaky: {
		Action:   "rerun",
		Strategy: "immediate_rerun",
		Safe:     true,
		Notes:    "known flaky signature; rerun without changes",
	},
	classify.CategoryProduct: {
		Action:   "manual_attention",
		Strategy: "escalate",
		Safe:     false,
		Notes:    "likely a real product defect; an automatic rerun would mask it",
	},
	classify.CategoryAutomation: {
		Action:   "manual_attention",
		Strategy: "escalate",
		Safe:     false,
		Notes:    "automation harness failure; rerunning the same harness cannot fix it",
	},
}

// Catalog 修复目录；零值即可用，表内容编译期固定
type Catalog struct{}

// New 创建修复目录
func New() *Catalog {
	return &Catalog{}
}

// Decide 查表；未知类别（含 unknown）回落到 manual_attention
func (c *Catalog) Decide(category string) runstore.RemediationDecision {
	if d, ok := table[category]; ok {
		return d
	}
	return manualAttention
}

// Apply 应用决策：safe=false 时不执行任何动作并给出原因；
// safe=true 时立即返回可写入事件的动作与策略名
func (c *Catalog) Apply(decision runstore.RemediationDecision) ApplyResult {
	if !decision.Safe {
		return ApplyResult{
			Applied:  false,
			Action:   decision.Action,
			Strategy: decision.Strategy,
			Reason:   decision.Notes,
		}
	}
	return ApplyResult{
		Applied:  true,
		Action:   decision.Action,
		Strategy: decision.Strategy,
	}
}
