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

package workfn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"runplane/internal/runstore"
)

// httpRequest 发往外部执行端点的载荷
type httpRequest struct {
	JobID string          `json:"job_id"`
	RunID string          `json:"run_id,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// httpResponse 外部执行端点的响应契约
type httpResponse struct {
	Output     json.RawMessage   `json:"output"`
	Unresolved []string          `json:"unresolved"`
	Artifacts  map[string]string `json:"artifacts"`
}

// NewHTTP 构造调用外部解释器端点的工作函数：POST endpoint，body 为
// {job_id, run_id, input}，响应映射为 WorkResult。非 2xx 与传输错误
// 作为错误返回，由 Supervisor 按未捕获异常处理。
func NewHTTP(endpoint string, timeout time.Duration) WorkFunc {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
		var out httpResponse
		resp, err := client.R().
			SetContext(ctx).
			SetBody(httpRequest{JobID: job.ID, RunID: job.RunID, Input: job.Input}).
			SetResult(&out).
			Post(endpoint)
		if err != nil {
			return nil, fmt.Errorf("work endpoint %s: %w", endpoint, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("work endpoint %s: status %d: %s", endpoint, resp.StatusCode(), resp.String())
		}
		return &runstore.WorkResult{
			Output:     out.Output,
			Unresolved: out.Unresolved,
			Artifacts:  out.Artifacts,
		}, nil
	}
}
