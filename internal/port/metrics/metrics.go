package metrics

// Recorder receives allocation metrics.
// [LSP] Nop and Prometheus implementations are interchangeable.
type Recorder interface {
	RecordUpload(result string, records int)
	RecordCapacityWarnings(n int)
	RecordRedistribution(trigger string, success bool, seconds float64, tasks int)
	ObserveWorkloadVariance(v float64)
}
