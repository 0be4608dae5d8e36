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

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"runplane/internal/runstore"
)

// StreamEvents 以 SSE 推送 Job 事件流；?from=N 从事件 Index N 开始重放。
// 流在 Job 到达终态事件后由服务端关闭，订阅历史 Job 会立即回放后结束。
// GET /api/jobs/:id/events
func (h *Handler) StreamEvents(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("id")
	if jobID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}
	if _, err := h.store.Get(c, jobID); err != nil {
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	var from int64
	if raw := ctx.Query("from"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &from); err != nil || from < 0 {
			ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "from must be a non-negative integer"})
			return
		}
	}

	ctx.Response.Header.Set("Content-Type", "text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")

	// 事件通道在终态事件后关闭；客户端断开时 pipe 写端报错，goroutine 随之退出
	streamCtx, cancel := context.WithCancel(context.Background())
	events := h.tailer.Tail(streamCtx, jobID, from)

	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		defer pw.Close()
		for ev := range events {
			if err := writeSSE(pw, ev); err != nil {
				return
			}
		}
	}()
	ctx.SetBodyStream(pr, -1)
}

// writeSSE 单条事件的 SSE 帧：id 携带事件 Index，断线后客户端可用其续传
func writeSSE(w io.Writer, ev runstore.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Index, ev.Type, data)
	return err
}
