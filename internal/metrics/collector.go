package metrics

import "time"

// Collector feeds pool lifecycle events into the Prometheus metrics.
// It satisfies the queue package's MetricsCollector interface.
type Collector struct{}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) JobStarted(jobType, queue string) {
	ActiveJobs.Inc()
}

func (c *Collector) JobCompleted(jobType, queue string, duration time.Duration) {
	ActiveJobs.Dec()
	JobsProcessedTotal.WithLabelValues(jobType, "success").Inc()
	JobProcessingDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

func (c *Collector) JobFailed(jobType, queue string, duration time.Duration) {
	ActiveJobs.Dec()
	JobsProcessedTotal.WithLabelValues(jobType, "error").Inc()
	JobProcessingDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

func (c *Collector) JobRetrying(jobType, queue string, attempt int) {
	ActiveJobs.Dec()
	JobsProcessedTotal.WithLabelValues(jobType, "retry").Inc()
}
