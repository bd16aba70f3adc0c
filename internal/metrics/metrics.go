package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkflowBuckets 工作流耗时分布，从 0.5s 到 5min
var WorkflowBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180, 300}

var (
	// WorkflowRunsTotal 按终态统计工作流运行次数
	WorkflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adapter",
			Name:      "workflow_runs_total",
			Help:      "Workflow runs by terminal status.",
		},
		[]string{"workflow", "status"},
	)

	WorkflowPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adapter",
			Name:      "workflow_polls_total",
			Help:      "Workflow status queries by result.",
		},
		[]string{"workflow", "result"},
	)

	WorkflowStopCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adapter",
			Name:      "workflow_stop_calls_total",
			Help:      "Best-effort stop calls issued after a deadline.",
		},
		[]string{"result"},
	)

	WorkflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adapter",
			Name:      "workflow_duration_seconds",
			Help:      "Time from submit to terminal status.",
			Buckets:   WorkflowBuckets,
		},
		[]string{"workflow"},
	)

	// ImageResultsTotal source: workflow / litellm / placeholder / error
	ImageResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adapter",
			Name:      "image_results_total",
			Help:      "Image generation outcomes by source.",
		},
		[]string{"source"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adapter",
			Name:      "requests_total",
			Help:      "Handled calls by modality, mode and outcome.",
		},
		[]string{"modality", "mode", "status"},
	)
)

// Handler 暴露默认 registry
func Handler() http.Handler {
	return promhttp.Handler()
}
