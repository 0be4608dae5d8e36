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

package app

import (
	"time"

	"runplane/internal/artifact"
	"runplane/internal/runstore"
	"runplane/internal/supervisor"
	"runplane/internal/workfn"
	"runplane/pkg/config"
	"runplane/pkg/errors"
	"runplane/pkg/log"
)

const defaultArtifactRoot = "./artifacts"

// Bootstrap 统一初始化：Store、Sink、工作函数与 Supervisor，避免在 cmd 内装配业务
type Bootstrap struct {
	Config     *config.Config
	Logger     *log.Logger
	Store      runstore.Store
	Sink       artifact.Sink
	Supervisor *supervisor.Supervisor
	Tailer     *supervisor.Tailer
}

// NewBootstrap 根据配置创建 Bootstrap
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, errors.Wrap(err, "初始化日志")
	}

	var retention runstore.RetentionConfig
	if cfg != nil {
		retention.MaxJobs = cfg.RunStore.MaxJobs
		retention.MaxEventsPerJob = cfg.RunStore.MaxEventsPerJob
	}
	store := runstore.NewMemoryStore(retention)

	root := defaultArtifactRoot
	if cfg != nil && cfg.Artifacts.Root != "" {
		root = cfg.Artifacts.Root
	}
	sink := artifact.NewFileSink(root)

	work := workFromConfig(cfg, logger)

	supCfg := supervisor.Config{}
	var metrics supervisor.Metrics = supervisor.NopMetrics{}
	if cfg != nil {
		supCfg.MaxAutoReruns = cfg.Supervisor.MaxAutoReruns
		supCfg.MaxTotalDuration = cfg.Supervisor.MaxTotalDurationOrDefault(0)
		supCfg.RerunBackoff = cfg.Supervisor.BackoffOrDefault(0)
		supCfg.ConfidenceThreshold = cfg.Supervisor.ConfidenceThreshold
		if cfg.Monitoring.Prometheus.Enable {
			metrics = PrometheusMetrics{}
		}
	}

	sup := supervisor.New(supervisor.Options{
		Store:   store,
		Sink:    sink,
		Work:    work,
		Config:  supCfg,
		Metrics: metrics,
		Logger:  logger,
	})

	return &Bootstrap{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Sink:       sink,
		Supervisor: sup,
		Tailer:     supervisor.NewTailer(store, 0),
	}, nil
}

// workFromConfig 选择工作函数：mode=http 时调用外部执行端点，否则内置 Echo
func workFromConfig(cfg *config.Config, logger *log.Logger) workfn.WorkFunc {
	if cfg != nil && cfg.WorkFn.Mode == "http" && cfg.WorkFn.Endpoint != "" {
		timeout := cfg.WorkFn.TimeoutOrDefault(60 * time.Second)
		logger.Info("工作函数使用外部执行端点", "endpoint", cfg.WorkFn.Endpoint, "timeout", timeout)
		return workfn.NewHTTP(cfg.WorkFn.Endpoint, timeout)
	}
	logger.Info("工作函数使用内置 echo 模式")
	return workfn.Echo
}
