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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"runplane/internal/runstore"
	"runplane/internal/supervisor"
	perrors "runplane/pkg/errors"
	"runplane/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	sup    *supervisor.Supervisor
	store  runstore.Store
	tailer *supervisor.Tailer
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(sup *supervisor.Supervisor, store runstore.Store, tailer *supervisor.Tailer) *Handler {
	return &Handler{
		sup:    sup,
		store:  store,
		tailer: tailer,
	}
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "runplane-api",
	})
}

// SubmitJob 提交 Job；请求体整体作为不透明输入传给工作函数
// POST /api/jobs
func (h *Handler) SubmitJob(c context.Context, ctx *app.RequestContext) {
	body := ctx.Request.Body()
	if len(body) > 0 && !json.Valid(body) {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "request body must be valid JSON",
		})
		return
	}
	id, err := h.sup.Submit(c, json.RawMessage(body))
	if err != nil {
		hlog.CtxErrorf(c, "submit job failed: %v", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "failed to submit job",
		})
		return
	}
	ctx.JSON(consts.StatusAccepted, map[string]any{
		"id":     id,
		"status": runstore.StatusQueued,
	})
}

// ListJobs 列出全部保留中的 Job（含终态）
// GET /api/jobs
func (h *Handler) ListJobs(c context.Context, ctx *app.RequestContext) {
	jobs, err := h.store.List(c)
	if err != nil {
		hlog.CtxErrorf(c, "list jobs failed: %v", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "failed to list jobs",
		})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// GetJob 查询单个 Job
// GET /api/jobs/:id
func (h *Handler) GetJob(c context.Context, ctx *app.RequestContext) {
	job, ok := h.lookupJob(c, ctx)
	if !ok {
		return
	}
	ctx.JSON(consts.StatusOK, job)
}

// ListAttempts 查询 Job 的全部 Attempt，按执行顺序排列
// GET /api/jobs/:id/attempts
func (h *Handler) ListAttempts(c context.Context, ctx *app.RequestContext) {
	job, ok := h.lookupJob(c, ctx)
	if !ok {
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{
		"job_id":   job.ID,
		"attempts": job.Attempts,
		"total":    len(job.Attempts),
	})
}

// GetResult 查询 Job 结果；未终态返回 409，调用方应稍后重试或订阅事件流
// GET /api/jobs/:id/result
func (h *Handler) GetResult(c context.Context, ctx *app.RequestContext) {
	job, ok := h.lookupJob(c, ctx)
	if !ok {
		return
	}
	if !job.Status.Terminal() {
		err := perrors.Wrapf(perrors.ErrNotReady, "job is %s", job.Status)
		ctx.JSON(consts.StatusConflict, map[string]any{
			"error":  err.Error(),
			"status": job.Status,
		})
		return
	}
	resp := map[string]any{
		"id":          job.ID,
		"status":      job.Status,
		"finished_at": job.FinishedAt,
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.IncidentLocator != "" {
		resp["incident_locator"] = job.IncidentLocator
	}
	ctx.JSON(consts.StatusOK, resp)
}

// CancelJob 请求取消；幂等，重复取消与取消终态 Job 都返回 202
// POST /api/jobs/:id/cancel
func (h *Handler) CancelJob(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("id")
	if jobID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}
	if err := h.sup.Cancel(c, jobID); err != nil {
		if errors.Is(err, runstore.ErrNotFound) {
			ctx.JSON(consts.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		hlog.CtxErrorf(c, "cancel job %s failed: %v", jobID, err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "failed to cancel job",
		})
		return
	}
	ctx.JSON(consts.StatusAccepted, map[string]any{
		"id":        jobID,
		"cancelled": "requested",
	})
}

// Metrics Prometheus 文本格式指标
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(c, "gather metrics failed: %v", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "failed to gather metrics",
		})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// lookupJob 解析 :id 并查 Store；失败时写好响应并返回 false
func (h *Handler) lookupJob(c context.Context, ctx *app.RequestContext) (*runstore.Job, bool) {
	jobID := ctx.Param("id")
	if jobID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "job id is required"})
		return nil, false
	}
	job, err := h.store.Get(c, jobID)
	if err != nil {
		if errors.Is(err, runstore.ErrNotFound) {
			ctx.JSON(consts.StatusNotFound, map[string]string{"error": "job not found"})
			return nil, false
		}
		hlog.CtxErrorf(c, "get job %s failed: %v", jobID, err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "failed to get job"})
		return nil, false
	}
	return job, true
}
