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

// Package workfn 不透明工作函数边界。控制面不关心工作函数如何产出结果，
// 只看成功/失败（Unresolved 条数）、产物与耗时。
package workfn

import (
	"context"

	"runplane/internal/runstore"
)

// WorkFunc 一次 Attempt 内同步调用的工作函数；返回错误视为未捕获异常，
// 由 Supervisor 强制归类为 automation 并升级
type WorkFunc func(ctx context.Context, job *runstore.Job) (*runstore.WorkResult, error)
