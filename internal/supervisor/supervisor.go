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

// Package supervisor 驱动单个 Job 的受控执行循环：
// 调用工作函数、落产物、失败分类、查修复目录、在预算内安排 rerun，
// 最终把 Job 推到唯一终态。每个 Job 恰好一个 goroutine 独占推进，
// 全部状态变更只走 Store，事件流是外部观察者的唯一事实来源。
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"runplane/internal/artifact"
	"runplane/internal/classify"
	"runplane/internal/remedy"
	"runplane/internal/runstore"
	"runplane/internal/workfn"
	"runplane/pkg/log"
)

const (
	defaultMaxAutoReruns       = 2
	defaultMaxTotalDuration    = 300 * time.Second
	defaultRerunBackoff        = time.Second
	defaultConfidenceThreshold = 0.55
)

// workErrorConfidence 工作函数报错/panic 视为 automation 失败的固定置信度
const workErrorConfidence = 0.9

// Config 执行预算与分类阈值
type Config struct {
	// MaxAutoReruns 自动 rerun 上限；Attempt 总数最多 MaxAutoReruns+1
	MaxAutoReruns int `mapstructure:"max_auto_reruns"`
	// MaxTotalDuration 单 Job 墙钟预算，每轮循环开始时检查
	MaxTotalDuration time.Duration `mapstructure:"max_total_duration"`
	// RerunBackoff 安排 rerun 后的等待
	RerunBackoff time.Duration `mapstructure:"backoff"`
	// ConfidenceThreshold 低于该置信度不做自动修复，直接升级
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

func (c Config) withDefaults() Config {
	if c.MaxAutoReruns <= 0 {
		c.MaxAutoReruns = defaultMaxAutoReruns
	}
	if c.MaxTotalDuration <= 0 {
		c.MaxTotalDuration = defaultMaxTotalDuration
	}
	if c.RerunBackoff <= 0 {
		c.RerunBackoff = defaultRerunBackoff
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = defaultConfidenceThreshold
	}
	return c
}

// Options Supervisor 依赖；Store/Sink/Work 必填，其余零值走默认
type Options struct {
	Store   runstore.Store
	Sink    artifact.Sink
	Work    workfn.WorkFunc
	Config  Config
	Metrics Metrics
	Logger  *log.Logger
}

// Supervisor Job 执行监督器；Submit 返回后由内部 goroutine 推进到终态
type Supervisor struct {
	store      runstore.Store
	sink       artifact.Sink
	work       workfn.WorkFunc
	classifier *classify.Classifier
	catalog    *remedy.Catalog
	cfg        Config
	metrics    Metrics
	logger     *log.Logger

	wg sync.WaitGroup
}

// New 创建 Supervisor
func New(opts Options) *Supervisor {
	m := opts.Metrics
	if m == nil {
		m = NopMetrics{}
	}
	l := opts.Logger
	if l == nil {
		l = log.Discard()
	}
	return &Supervisor{
		store:      opts.Store,
		sink:       opts.Sink,
		work:       opts.Work,
		classifier: classify.New(),
		catalog:    remedy.New(),
		cfg:        opts.Config.withDefaults(),
		metrics:    m,
		logger:     l,
	}
}

// Submit 接受一个 Job 输入，立即返回 Job ID；执行在后台进行
func (s *Supervisor) Submit(ctx context.Context, input json.RawMessage) (string, error) {
	job := &runstore.Job{
		ID:     "job-" + uuid.New().String(),
		Status: runstore.StatusQueued,
		Input:  input,
	}
	id, err := s.store.Put(ctx, job)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	s.wg.Add(1)
	go s.run(id)
	return id, nil
}

// Cancel 请求取消；幂等，对终态 Job 是 no-op。
// 实际停止发生在执行循环的下一个取消检查点，不打断进行中的工作函数调用。
func (s *Supervisor) Cancel(ctx context.Context, jobID string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	requested := true
	patch := runstore.JobPatch{CancelRequested: &requested}
	if job.Status == runstore.StatusQueued || job.Status == runstore.StatusRunning {
		st := runstore.StatusCancelling
		patch.Status = &st
	}
	if _, err := s.store.PatchJob(ctx, jobID, patch); err != nil {
		return err
	}
	s.logger.Info("cancel requested", "job_id", jobID)
	return nil
}

// Wait 等待全部在途 Job 结束；关停用
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// run 单个 Job 的执行循环；唯一允许推进该 Job 状态的 goroutine
func (s *Supervisor) run(jobID string) {
	defer s.wg.Done()
	ctx := context.Background()
	logger := s.logger.With("job_id", jobID)

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		logger.Error("job vanished before start", "error", err)
		return
	}
	if job.CancelRequested {
		s.finishCancelled(ctx, jobID, "", time.Now(), logger)
		return
	}

	runID := "run-" + uuid.New().String()
	start := time.Now()
	running := runstore.StatusRunning
	job, err = s.store.PatchJob(ctx, jobID, runstore.JobPatch{
		Status:    &running,
		RunID:     &runID,
		StartedAt: &start,
	})
	if err != nil {
		logger.Error("mark running failed", "error", err)
		return
	}
	s.emit(ctx, jobID, runstore.EventJobRunning, map[string]any{"run_id": runID})
	logger = logger.With("run_id", runID)
	logger.Info("job running")

	var (
		succeeded bool
		incident  *Incident
		lastCls   *runstore.Classification
	)

	for i := 0; i <= s.cfg.MaxAutoReruns; i++ {
		if time.Since(start) > s.cfg.MaxTotalDuration {
			incident = newIncident(jobID, runID, "", lastCls,
				fmt.Sprintf("Total duration budget of %s exceeded", s.cfg.MaxTotalDuration))
			logger.Warn("duration budget exceeded", "elapsed", time.Since(start))
			break
		}
		if cur, err := s.store.Get(ctx, jobID); err == nil && cur.CancelRequested {
			s.finishCancelled(ctx, jobID, "", start, logger)
			return
		}

		attempt, err := s.store.AppendAttempt(ctx, jobID, runstore.Attempt{
			Index:     i,
			Status:    runstore.AttemptStarted,
			StartedAt: time.Now(),
		})
		if err != nil {
			logger.Error("append attempt failed", "error", err)
			return
		}
		alog := logger.With("attempt_id", attempt.ID, "attempt_index", i)
		s.emit(ctx, jobID, runstore.EventAttemptStarted, map[string]any{
			"attempt_id": attempt.ID,
			"index":      i,
		})
		alog.Info("attempt started")

		res, workErr := s.invokeWork(ctx, job)

		// 工作函数返回后补一次取消检查；取消赢过这次结果
		if cur, err := s.store.Get(ctx, jobID); err == nil && cur.CancelRequested {
			s.finishCancelled(ctx, jobID, attempt.ID, start, logger)
			return
		}

		if workErr != nil {
			cls := &runstore.Classification{
				Category:   classify.CategoryAutomation,
				Confidence: workErrorConfidence,
				Summary:    fmt.Sprintf("work function failed: %v", workErr),
			}
			lastCls = cls
			now := time.Now()
			st := runstore.AttemptClassified
			if err := s.store.PatchAttempt(ctx, jobID, attempt.ID, runstore.AttemptPatch{
				Status:         &st,
				FinishedAt:     &now,
				Classification: cls,
			}); err != nil {
				alog.Error("patch attempt failed", "error", err)
			}
			s.emit(ctx, jobID, runstore.EventAttemptClassified, map[string]any{
				"attempt_id": attempt.ID,
				"category":   cls.Category,
				"confidence": cls.Confidence,
				"summary":    cls.Summary,
			})
			s.metrics.AttemptClassified(cls.Category)
			alog.Error("work function error", "error", workErr)
			incident = newIncident(jobID, runID, attempt.ID, cls,
				"Work function raised an uncaught error")
			break
		}

		locators, ok := s.persistArtifacts(ctx, jobID, runID, attempt.ID, res, alog)
		if !ok {
			// Sink 写失败对本次 Attempt 致命；Job 留在 running 态作为告警信号
			return
		}
		if err := s.store.PatchAttempt(ctx, jobID, attempt.ID, runstore.AttemptPatch{
			Artifacts: locators,
		}); err != nil {
			alog.Error("patch attempt artifacts failed", "error", err)
		}

		if len(res.Unresolved) == 0 {
			now := time.Now()
			st := runstore.AttemptSucceeded
			if err := s.store.PatchAttempt(ctx, jobID, attempt.ID, runstore.AttemptPatch{
				Status:     &st,
				FinishedAt: &now,
			}); err != nil {
				alog.Error("patch attempt failed", "error", err)
			}
			if _, err := s.store.PatchJob(ctx, jobID, runstore.JobPatch{Result: res}); err != nil {
				alog.Error("patch job result failed", "error", err)
			}
			s.emit(ctx, jobID, runstore.EventAttemptSucceeded, map[string]any{
				"attempt_id": attempt.ID,
			})
			alog.Info("attempt succeeded")
			succeeded = true
			break
		}

		cls := s.classifier.Classify(res.Artifacts)
		lastCls = &cls
		clsLoc, err := s.sink.WriteJSON(ctx, jobID, runID, attempt.ID, "classification", cls)
		if err != nil {
			s.sinkFailure(jobID, attempt.ID, "classification", err, alog)
			return
		}
		now := time.Now()
		st := runstore.AttemptClassified
		if err := s.store.PatchAttempt(ctx, jobID, attempt.ID, runstore.AttemptPatch{
			Status:         &st,
			Classification: &cls,
			Artifacts:      map[string]string{"classification": clsLoc},
		}); err != nil {
			alog.Error("patch attempt failed", "error", err)
		}
		s.emit(ctx, jobID, runstore.EventAttemptClassified, map[string]any{
			"attempt_id": attempt.ID,
			"category":   cls.Category,
			"confidence": cls.Confidence,
			"signals":    cls.Signals,
		})
		s.metrics.AttemptClassified(cls.Category)
		alog.Info("attempt classified", "category", cls.Category, "confidence", cls.Confidence)

		if cls.Confidence < s.cfg.ConfidenceThreshold {
			if err := s.store.PatchAttempt(ctx, jobID, attempt.ID, runstore.AttemptPatch{
				FinishedAt: &now,
			}); err != nil {
				alog.Error("patch attempt failed", "error", err)
			}
			incident = newIncident(jobID, runID, attempt.ID, &cls,
				fmt.Sprintf("Classification confidence %.2f below threshold %.2f",
					cls.Confidence, s.cfg.ConfidenceThreshold))
			break
		}

		decision := s.catalog.Decide(cls.Category)
		applied := s.catalog.Apply(decision)
		rst := runstore.AttemptRemediated
		if err := s.store.PatchAttempt(ctx, jobID, attempt.ID, runstore.AttemptPatch{
			Status:      &rst,
			Remediation: &decision,
		}); err != nil {
			alog.Error("patch attempt failed", "error", err)
		}
		s.emit(ctx, jobID, runstore.EventAttemptRemediated, map[string]any{
			"attempt_id": attempt.ID,
			"action":     applied.Action,
			"strategy":   applied.Strategy,
			"applied":    applied.Applied,
			"reason":     applied.Reason,
		})
		s.metrics.RemediationApplied(decision.Action, applied.Applied)

		if !applied.Applied {
			fin := time.Now()
			if err := s.store.PatchAttempt(ctx, jobID, attempt.ID, runstore.AttemptPatch{
				FinishedAt: &fin,
			}); err != nil {
				alog.Error("patch attempt failed", "error", err)
			}
			incident = newIncident(jobID, runID, attempt.ID, &cls,
				fmt.Sprintf("No safe automatic remediation for category %q: %s",
					cls.Category, decision.Notes))
			alog.Warn("remediation not applied", "category", cls.Category, "reason", applied.Reason)
			break
		}

		fin := time.Now()
		if i == s.cfg.MaxAutoReruns {
			// rerun 预算已用尽，不再标记 rerun_scheduled；终结逻辑统一给终态
			if err := s.store.PatchAttempt(ctx, jobID, attempt.ID, runstore.AttemptPatch{
				FinishedAt: &fin,
			}); err != nil {
				alog.Error("patch attempt failed", "error", err)
			}
			break
		}
		pst := runstore.AttemptRerunScheduled
		if err := s.store.PatchAttempt(ctx, jobID, attempt.ID, runstore.AttemptPatch{
			Status:     &pst,
			FinishedAt: &fin,
		}); err != nil {
			alog.Error("patch attempt failed", "error", err)
		}
		s.emit(ctx, jobID, runstore.EventAttemptRerunPlanned, map[string]any{
			"attempt_id": attempt.ID,
			"next_index": i + 1,
			"backoff_ms": s.cfg.RerunBackoff.Milliseconds(),
		})
		alog.Info("rerun scheduled", "next_index", i+1)
		time.Sleep(s.cfg.RerunBackoff)
	}

	s.finalize(ctx, jobID, runID, start, succeeded, incident, lastCls, logger)
}

// invokeWork 调用不可信的工作函数；panic 转为错误，不允许拖垮进程
func (s *Supervisor) invokeWork(ctx context.Context, job *runstore.Job) (res *runstore.WorkResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("work function panic: %v", r)
		}
	}()
	res, err = s.work(ctx, job)
	if err == nil && res == nil {
		err = fmt.Errorf("work function returned nil result")
	}
	return res, err
}

// persistArtifacts 把一次执行的产物与结果 JSON 写入 Sink，返回 名字→定位符
func (s *Supervisor) persistArtifacts(ctx context.Context, jobID, runID, attemptID string, res *runstore.WorkResult, logger *log.Logger) (map[string]string, bool) {
	locators := make(map[string]string, len(res.Artifacts)+1)
	for name, content := range res.Artifacts {
		loc, err := s.sink.WriteText(ctx, jobID, runID, attemptID, name, content)
		if err != nil {
			s.sinkFailure(jobID, attemptID, name, err, logger)
			return nil, false
		}
		locators[name] = loc
	}
	loc, err := s.sink.WriteJSON(ctx, jobID, runID, attemptID, "result", res)
	if err != nil {
		s.sinkFailure(jobID, attemptID, "result", err, logger)
		return nil, false
	}
	locators["result"] = loc
	return locators, true
}

// sinkFailure 产物写失败的统一告警出口；调用方随后放弃本次 Attempt
func (s *Supervisor) sinkFailure(jobID, attemptID, name string, err error, logger *log.Logger) {
	s.metrics.SinkWriteFailed()
	logger.Error("artifact sink write failed, abandoning attempt",
		"attempt_id", attemptID, "artifact", name, "error", err)
}

// finishCancelled 取消路径的终结：可选地关闭在途 Attempt，Job 进 cancelled。
// 终态事件是 job.cancelled，不再发 job.finished。
func (s *Supervisor) finishCancelled(ctx context.Context, jobID, attemptID string, start time.Time, logger *log.Logger) {
	now := time.Now()
	if attemptID != "" {
		st := runstore.AttemptCancelled
		if err := s.store.PatchAttempt(ctx, jobID, attemptID, runstore.AttemptPatch{
			Status:     &st,
			FinishedAt: &now,
		}); err != nil {
			logger.Error("patch attempt failed", "error", err)
		}
		s.emit(ctx, jobID, runstore.EventAttemptCancelled, map[string]any{"attempt_id": attemptID})
	}
	st := runstore.StatusCancelled
	if _, err := s.store.PatchJob(ctx, jobID, runstore.JobPatch{
		Status:     &st,
		FinishedAt: &now,
	}); err != nil {
		logger.Error("patch job failed", "error", err)
	}
	s.emit(ctx, jobID, runstore.EventJobCancelled, nil)
	s.metrics.JobFinished(string(runstore.StatusCancelled), now.Sub(start))
	logger.Info("job cancelled")
}

// finalize 非取消路径的终结：决定终态、保证 Incident 存在性、写定位符并收尾
func (s *Supervisor) finalize(ctx context.Context, jobID, runID string, start time.Time, succeeded bool, incident *Incident, lastCls *runstore.Classification, logger *log.Logger) {
	status := runstore.StatusSucceeded
	if !succeeded {
		status = runstore.StatusNeedsAttention
		if incident == nil {
			// rerun 预算耗尽但没有显式升级原因；needs_attention 必须有 Incident
			incident = newIncident(jobID, runID, "", lastCls, "Rerun budget exhausted without success")
		}
	}

	now := time.Now()
	patch := runstore.JobPatch{Status: &status, FinishedAt: &now}

	if incident != nil {
		loc, err := s.sink.WriteIncident(ctx, jobID, incident)
		if err != nil {
			// Incident 写不进 Sink 时 Job 留在 running 态等待运维介入
			s.metrics.SinkWriteFailed()
			logger.Error("incident write failed, job left running", "error", err)
			return
		}
		patch.IncidentLocator = &loc
		payload := map[string]any{"locator": loc, "reason": incident.Reason}
		if incident.Classification != nil {
			payload["category"] = incident.Classification.Category
		}
		s.emit(ctx, jobID, runstore.EventJobIncident, payload)
		logger.Warn("incident recorded", "locator", loc, "reason", incident.Reason)
	}

	if _, err := s.store.PatchJob(ctx, jobID, patch); err != nil {
		logger.Error("patch job failed", "error", err)
		return
	}
	s.emit(ctx, jobID, runstore.EventJobFinished, map[string]any{"status": status})
	s.metrics.JobFinished(string(status), now.Sub(start))
	logger.Info("job finished", "status", status, "elapsed", now.Sub(start))
}

// emit 追加事件；事件追加失败只记日志，不阻断状态推进
func (s *Supervisor) emit(ctx context.Context, jobID string, t runstore.EventType, payload any) {
	if _, err := s.store.AppendEvent(ctx, jobID, t, payload); err != nil {
		s.logger.Error("append event failed", "job_id", jobID, "event", string(t), "error", err)
	}
}
