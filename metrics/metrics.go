// Package metrics provides lightweight, lock-free pool and response counters
// using atomic operations so they impose minimal overhead on hot paths.
//
// Metrics also implements prometheus.Collector, so a single instance can be
// registered on a prometheus.Registry and scraped from the dashboard's
// /metrics endpoint without a second set of counters.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gopoolserver"

// Metrics tracks aggregate statistics for the worker pool and the connection
// layer that feeds it.
//
// All counters are accessed exclusively through atomic operations, so the
// struct may be shared by every worker goroutine without additional locking.
// Reads are individually linearisable; a Snapshot made of several loads may
// be very slightly inconsistent, which is acceptable for monitoring.
type Metrics struct {
	Submitted uint64
	Completed uint64
	Panicked  uint64
	Rejected  uint64

	// Responses by status class, written by the connection layer.
	Responses2xx uint64
	Responses4xx uint64
	Responses5xx uint64

	busy      atomic.Int64
	startTime time.Time

	jobDuration prometheus.Histogram

	descSubmitted *prometheus.Desc
	descCompleted *prometheus.Desc
	descPanicked  *prometheus.Desc
	descRejected  *prometheus.Desc
	descBusy      *prometheus.Desc
	descResponses *prometheus.Desc
}

// NewMetrics creates a Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock time spent executing a single job.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		descSubmitted: prometheus.NewDesc(namespace+"_jobs_submitted_total",
			"Jobs accepted by Submit.", nil, nil),
		descCompleted: prometheus.NewDesc(namespace+"_jobs_completed_total",
			"Jobs that returned normally.", nil, nil),
		descPanicked: prometheus.NewDesc(namespace+"_jobs_panicked_total",
			"Jobs that panicked and were recovered by their worker.", nil, nil),
		descRejected: prometheus.NewDesc(namespace+"_jobs_rejected_total",
			"Submissions refused because the pool was shutting down.", nil, nil),
		descBusy: prometheus.NewDesc(namespace+"_workers_busy",
			"Workers currently executing a job.", nil, nil),
		descResponses: prometheus.NewDesc(namespace+"_responses_total",
			"Responses written by the connection layer, by status class.",
			[]string{"class"}, nil),
	}
}

// IncrementSubmitted atomically increments the submitted-jobs counter.
func (m *Metrics) IncrementSubmitted() { atomic.AddUint64(&m.Submitted, 1) }

// IncrementRejected atomically increments the rejected-submissions counter.
func (m *Metrics) IncrementRejected() { atomic.AddUint64(&m.Rejected, 1) }

// JobStarted marks one worker as busy.
func (m *Metrics) JobStarted() { m.busy.Add(1) }

// JobFinished marks a worker idle again and records the job's duration.
// panicked selects which outcome counter is incremented.
func (m *Metrics) JobFinished(d time.Duration, panicked bool) {
	m.busy.Add(-1)
	if panicked {
		atomic.AddUint64(&m.Panicked, 1)
	} else {
		atomic.AddUint64(&m.Completed, 1)
	}
	m.jobDuration.Observe(d.Seconds())
}

// ObserveResponse counts a written response under its status class.
func (m *Metrics) ObserveResponse(status int) {
	switch {
	case status >= 500:
		atomic.AddUint64(&m.Responses5xx, 1)
	case status >= 400:
		atomic.AddUint64(&m.Responses4xx, 1)
	default:
		atomic.AddUint64(&m.Responses2xx, 1)
	}
}

// Busy returns the number of workers currently running a job.
func (m *Metrics) Busy() int64 { return m.busy.Load() }

// JobsPerSecond returns the average completion rate (including recovered
// panics) since the Metrics instance was created.
func (m *Metrics) JobsPerSecond() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	done := atomic.LoadUint64(&m.Completed) + atomic.LoadUint64(&m.Panicked)
	return float64(done) / elapsed
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Submitted    uint64
	Completed    uint64
	Panicked     uint64
	Rejected     uint64
	Busy         int64
	Responses2xx uint64
	Responses4xx uint64
	Responses5xx uint64
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Submitted:    atomic.LoadUint64(&m.Submitted),
		Completed:    atomic.LoadUint64(&m.Completed),
		Panicked:     atomic.LoadUint64(&m.Panicked),
		Rejected:     atomic.LoadUint64(&m.Rejected),
		Busy:         m.busy.Load(),
		Responses2xx: atomic.LoadUint64(&m.Responses2xx),
		Responses4xx: atomic.LoadUint64(&m.Responses4xx),
		Responses5xx: atomic.LoadUint64(&m.Responses5xx),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.descSubmitted
	ch <- m.descCompleted
	ch <- m.descPanicked
	ch <- m.descRejected
	ch <- m.descBusy
	ch <- m.descResponses
	m.jobDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	s := m.Snapshot()
	ch <- prometheus.MustNewConstMetric(m.descSubmitted, prometheus.CounterValue, float64(s.Submitted))
	ch <- prometheus.MustNewConstMetric(m.descCompleted, prometheus.CounterValue, float64(s.Completed))
	ch <- prometheus.MustNewConstMetric(m.descPanicked, prometheus.CounterValue, float64(s.Panicked))
	ch <- prometheus.MustNewConstMetric(m.descRejected, prometheus.CounterValue, float64(s.Rejected))
	ch <- prometheus.MustNewConstMetric(m.descBusy, prometheus.GaugeValue, float64(s.Busy))
	ch <- prometheus.MustNewConstMetric(m.descResponses, prometheus.CounterValue, float64(s.Responses2xx), "2xx")
	ch <- prometheus.MustNewConstMetric(m.descResponses, prometheus.CounterValue, float64(s.Responses4xx), "4xx")
	ch <- prometheus.MustNewConstMetric(m.descResponses, prometheus.CounterValue, float64(s.Responses5xx), "5xx")
	m.jobDuration.Collect(ch)
}
