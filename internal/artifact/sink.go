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

// Package artifact 持久化 Attempt 产物与 Incident 报告。
// Sink 只负责写字节并返回定位符，不含业务逻辑；写失败对当前 Attempt 是致命的，
// 不做静默重试——产物丢失会破坏审计链。
package artifact

import "context"

// Sink 产物存储：定位符是稳定、可人工检查的路径，按 job/run/attempt 作用域隔离
type Sink interface {
	// WriteText 写文本产物，返回定位符
	WriteText(ctx context.Context, jobID, runID, attemptID, name, content string) (string, error)
	// WriteJSON 将 payload 序列化为 JSON 后写入，返回定位符
	WriteJSON(ctx context.Context, jobID, runID, attemptID, name string, payload any) (string, error)
	// WriteIncident 持久化升级报告，定位符随后挂到 Job 上
	WriteIncident(ctx context.Context, jobID string, payload any) (string, error)
}
