package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 进程注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		JobDuration, JobTotal,
		ClassificationTotal, RemediationTotal,
		IncidentTotal, SinkWriteFailTotal,
	)
}

// JobDuration Job 从开始执行到终态的耗时（秒）
var JobDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "runplane_job_duration_seconds",
		Help:    "Job 从开始执行到终态的耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"status"},
)

// JobTotal 终态 Job 总数（按状态）
var JobTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runplane_job_total",
		Help: "终态 Job 总数（按状态）",
	},
	[]string{"status"}, // succeeded | needs_attention | cancelled
)

// ClassificationTotal 失败分类总数（按类别）
var ClassificationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runplane_classification_total",
		Help: "失败分类总数（按类别）",
	},
	[]string{"category"},
)

// RemediationTotal 修复决策总数（按动作与是否应用）
var RemediationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "runplane_remediation_total",
		Help: "修复决策总数（按动作与是否应用）",
	},
	[]string{"action", "applied"},
)

// IncidentTotal 升级报告总数
var IncidentTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "runplane_incident_total",
		Help: "升级报告总数",
	},
)

// SinkWriteFailTotal 产物写入失败总数；非零即需要运维介入
var SinkWriteFailTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "runplane_sink_write_fail_total",
		Help: "产物写入失败总数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
