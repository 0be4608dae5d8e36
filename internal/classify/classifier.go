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

// Package classify 把一组 Attempt 产物映射到失败类别。
// 纯启发式：拼接全部产物文本、小写化、按固定顺序匹配信号组，首个命中组决定
// 类别与该类别的固定置信度。顺序是刻意的——infra 类信号（超时、连接重置）
// 歧义最小，必须先于文本里可能同时出现的弱信号匹配。
package classify

import (
	"fmt"
	"strings"

	"runplane/internal/runstore"
)

// 失败分类固定类别
const (
	CategoryInfra      = "infra"
	CategoryEnv        = "env"
	CategoryData       = "data"
	CategoryFlaky      = "flaky"
	CategoryProduct    = "product"
	CategoryAutomation = "automation"
	CategoryUnknown    = "unknown"
)

// UnknownConfidence 无信号命中时的低置信度
const UnknownConfidence = 0.3

// signalGroup 一组同类信号；Confidence 为该类别的手选常量（无统计推导）
type signalGroup struct {
	category   string
	confidence float64
	signals    []string
}

// groups 匹配顺序即优先级：infra → product → automation → flaky → data → env
var groups = []signalGroup{
	{CategoryInfra, 0.85, []string{
		"connection reset", "connection refused", "timed out", "timeout",
		"econnreset", "econnrefused", "no route to host", "dns", "tls handshake",
		"bad gateway", "service unavailable", "503",
	}},
	{CategoryProduct, 0.80, []string{
		"assertion failed", "assert", "expected but got", "mismatch",
		"wrong value", "incorrect result", "regression",
	}},
	{CategoryAutomation, 0.75, []string{
		"element not found", "no such element", "stale element", "selector",
		"xpath", "click intercepted", "webdriver", "screenshot",
	}},
	{CategoryFlaky, 0.70, []string{
		"flaky", "intermittent", "passed on retry", "race condition",
		"sometimes fails",
	}},
	{CategoryData, 0.70, []string{
		"fixture", "test data", "missing record", "seed data",
		"schema mismatch", "unexpected null",
	}},
	{CategoryEnv, 0.65, []string{
		"environment variable", "env var", "missing dependency",
		"permission denied", "disk full", "version mismatch", "not installed",
	}},
}

// Classifier 无状态分类器；零值即可用
type Classifier struct{}

// New 创建分类器
func New() *Classifier {
	return &Classifier{}
}

// Classify 对产物文本分类；契约只有一条：返回固定类别之一且置信度严格落在 [0,1]
func (c *Classifier) Classify(artifacts map[string]string) runstore.Classification {
	var sb strings.Builder
	for _, content := range artifacts {
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	text := strings.ToLower(sb.String())

	for _, g := range groups {
		var matched []string
		for _, sig := range g.signals {
			if strings.Contains(text, sig) {
				matched = append(matched, sig)
			}
		}
		if len(matched) > 0 {
			return runstore.Classification{
				Category:   g.category,
				Confidence: g.confidence,
				Signals:    matched,
				Summary:    fmt.Sprintf("matched %d %s signal(s): %s", len(matched), g.category, strings.Join(matched, ", ")),
			}
		}
	}
	return runstore.Classification{
		Category:   CategoryUnknown,
		Confidence: UnknownConfidence,
		Summary:    "no recognizable failure signal",
	}
}
