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

package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSink 文件系统实现：root/<job>/<run>/<attempt>/<name>；
// 路径按 attempt 隔离，不同 Attempt 的产物不会互相覆盖
type FileSink struct {
	root string
}

// NewFileSink 创建文件 Sink；root 目录不存在时按需创建
func NewFileSink(root string) *FileSink {
	return &FileSink{root: root}
}

func (s *FileSink) WriteText(ctx context.Context, jobID, runID, attemptID, name, content string) (string, error) {
	if !strings.Contains(name, ".") {
		name += ".txt"
	}
	return s.write(filepath.Join(s.root, jobID, runID, attemptID, safeName(name)), []byte(content))
}

func (s *FileSink) WriteJSON(ctx context.Context, jobID, runID, attemptID, name string, payload any) (string, error) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return s.write(filepath.Join(s.root, jobID, runID, attemptID, safeName(name)), b)
}

func (s *FileSink) WriteIncident(ctx context.Context, jobID string, payload any) (string, error) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal incident: %w", err)
	}
	name := "incident-" + time.Now().Format("20060102-150405") + ".json"
	return s.write(filepath.Join(s.root, jobID, name), b)
}

func (s *FileSink) write(path string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	return path, nil
}

// safeName 产物名可能来自工作函数的任意输出，压平路径分隔符避免逃出 attempt 目录
func safeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	return strings.ReplaceAll(name, string(filepath.Separator), "_")
}
