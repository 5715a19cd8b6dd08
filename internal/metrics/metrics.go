package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finetune_uploads_total",
		Help: "Training data files handled by the upload manager grouped by outcome",
	}, []string{"result"})

	modelNameLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finetune_model_name_lookups_total",
		Help: "Trained model name lookups grouped by outcome",
	}, []string{"result"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "response_cache_lookups_total",
		Help: "Response cache lookups grouped by outcome",
	}, []string{"result"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finetune_task_duration_seconds",
		Help:    "Duration of fine-tune submission tasks executed by the worker",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"status"})

	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finetune_tasks_total",
		Help: "Fine-tune submission tasks grouped by status",
	}, []string{"status"})
)

// ObserveUpload records whether a training file was uploaded or matched an
// existing managed file.
func ObserveUpload(deduplicated bool) {
	if deduplicated {
		uploadsTotal.WithLabelValues("deduplicated").Inc()
	} else {
		uploadsTotal.WithLabelValues("uploaded").Inc()
	}
}

// ObserveModelNameLookup records one of "cached", "resolved" or "pending".
func ObserveModelNameLookup(result string) {
	modelNameLookups.WithLabelValues(result).Inc()
}

// ObserveCacheLookup records one of "hit", "miss" or "error".
func ObserveCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func ObserveTask(status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	taskDuration.WithLabelValues(status).Observe(duration.Seconds())
	tasksTotal.WithLabelValues(status).Inc()
}
