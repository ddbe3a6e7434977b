package metrics

import portmetrics "github.com/alanyang/call-dispatch/internal/port/metrics"

// Nop discards every metric. Used in tests and when metrics are disabled.
type Nop struct{}

var _ portmetrics.Recorder = (*Nop)(nil)

func NewNop() *Nop { return &Nop{} }

func (*Nop) RecordUpload(_ string, _ int)                            {}
func (*Nop) RecordCapacityWarnings(_ int)                            {}
func (*Nop) RecordRedistribution(_ string, _ bool, _ float64, _ int) {}
func (*Nop) ObserveWorkloadVariance(_ float64)                       {}
