// Package metrics exposes Prometheus metrics for the media pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chekins_jobs_processed_total",
		Help: "Total jobs processed by outcome",
	}, []string{"job_type", "status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chekins_job_processing_duration_seconds",
		Help:    "Job processing duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"job_type"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chekins_worker_active_jobs",
		Help: "Jobs currently being processed",
	})

	WorkerPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chekins_worker_pool_size",
		Help: "Configured worker pool concurrency",
	})

	MediaProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chekins_media_processed_total",
		Help: "Media items processed by outcome",
	}, []string{"status"})

	AdminAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chekins_admin_alerts_total",
		Help: "Admin alerts attempted by delivery status",
	}, []string{"status"})

	appInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chekins_app_info",
		Help: "Build and environment information",
	}, []string{"version", "environment", "service"})
)

func SetAppInfo(version, environment, service string) {
	appInfo.WithLabelValues(version, environment, service).Set(1)
}

func SetWorkerPoolSize(n int) {
	WorkerPoolSize.Set(float64(n))
}

func RecordMediaProcessed(status string) {
	MediaProcessedTotal.WithLabelValues(status).Inc()
}

func RecordAdminAlert(status string) {
	AdminAlertsTotal.WithLabelValues(status).Inc()
}
