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

	"runplane/internal/runstore"
)

// echoInput Echo 模式的输入契约；未配置外部执行端点时用于本地联调
type echoInput struct {
	Output     json.RawMessage   `json:"output"`
	Unresolved []string          `json:"unresolved"`
	Artifacts  map[string]string `json:"artifacts"`
}

// Echo 把 Job 输入原样回放为 WorkResult：input.unresolved 决定成败，
// input.artifacts 作为产物。没有任何外部依赖，适合 demo 与测试。
func Echo(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error) {
	var in echoInput
	if len(job.Input) > 0 {
		if err := json.Unmarshal(job.Input, &in); err != nil {
			return nil, fmt.Errorf("echo work: decode input: %w", err)
		}
	}
	res := &runstore.WorkResult{
		Output:     in.Output,
		Unresolved: in.Unresolved,
		Artifacts:  in.Artifacts,
	}
	if res.Artifacts == nil {
		res.Artifacts = map[string]string{"stdout": "echo: no artifacts supplied"}
	}
	return res, nil
}
