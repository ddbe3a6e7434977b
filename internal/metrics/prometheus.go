package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	portmetrics "github.com/alanyang/call-dispatch/internal/port/metrics"
)

// Prometheus implements port/metrics.Recorder with Prometheus collectors
// registered once under namespace.
type Prometheus struct {
	uploads          *prometheus.CounterVec
	uploadedRecords  prometheus.Counter
	capacityWarnings prometheus.Counter
	redistributions  *prometheus.CounterVec
	redistDuration   prometheus.Histogram
	redistTasks      prometheus.Histogram
	variance         prometheus.Histogram
}

var _ portmetrics.Recorder = (*Prometheus)(nil)

// NewPrometheus registers the collectors on reg (prometheus.DefaultRegisterer
// when nil) under namespace ("dispatch" when empty).
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "dispatch"
	}

	p := &Prometheus{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "total",
			Help:      "Uploads by outcome (ok, invalid_file, invalid_rows, ineligible, error).",
		}, []string{"result"}),
		uploadedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "records_total",
			Help:      "Records persisted by successful uploads.",
		}),
		capacityWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "capacity_warnings_total",
			Help:      "Agents reported as approaching the per-agent task ceiling.",
		}),
		redistributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redistribution",
			Name:      "total",
			Help:      "Redistributions by trigger and success.",
		}, []string{"trigger", "success"}),
		redistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redistribution",
			Name:      "duration_seconds",
			Help:      "Wall time of one clear-then-reassign pass.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		redistTasks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redistribution",
			Name:      "tasks",
			Help:      "Tasks reassigned per redistribution.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		variance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "plan",
			Name:      "workload_variance",
			Help:      "Population variance of per-agent totals after a plan is applied.",
			Buckets:   []float64{0, 0.25, 1, 4, 16, 64, 256, 1024},
		}),
	}

	for _, c := range []prometheus.Collector{
		p.uploads, p.uploadedRecords, p.capacityWarnings,
		p.redistributions, p.redistDuration, p.redistTasks, p.variance,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RecordUpload(result string, records int) {
	p.uploads.WithLabelValues(result).Inc()
	if records > 0 {
		p.uploadedRecords.Add(float64(records))
	}
}

func (p *Prometheus) RecordCapacityWarnings(n int) {
	if n > 0 {
		p.capacityWarnings.Add(float64(n))
	}
}

func (p *Prometheus) RecordRedistribution(trigger string, success bool, seconds float64, tasks int) {
	p.redistributions.WithLabelValues(trigger, strconv.FormatBool(success)).Inc()
	p.redistDuration.Observe(seconds)
	if success {
		p.redistTasks.Observe(float64(tasks))
	}
}

func (p *Prometheus) ObserveWorkloadVariance(v float64) {
	p.variance.Observe(v)
}
