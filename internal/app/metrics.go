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
	"strconv"
	"time"

	"runplane/internal/runstore"
	"runplane/internal/supervisor"
	"runplane/pkg/metrics"
)

// PrometheusMetrics 把 Supervisor 的指标出口接到全局 Prometheus Registry
type PrometheusMetrics struct{}

var _ supervisor.Metrics = PrometheusMetrics{}

func (PrometheusMetrics) JobFinished(status string, elapsed time.Duration) {
	metrics.JobTotal.WithLabelValues(status).Inc()
	metrics.JobDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if status == string(runstore.StatusNeedsAttention) {
		metrics.IncidentTotal.Inc()
	}
}

func (PrometheusMetrics) AttemptClassified(category string) {
	metrics.ClassificationTotal.WithLabelValues(category).Inc()
}

func (PrometheusMetrics) RemediationApplied(action string, applied bool) {
	metrics.RemediationTotal.WithLabelValues(action, strconv.FormatBool(applied)).Inc()
}

func (PrometheusMetrics) SinkWriteFailed() {
	metrics.SinkWriteFailTotal.Inc()
}
