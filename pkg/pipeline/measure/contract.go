// Package measure records how long every pipeline step spends computing and
// waiting on its input.
package measure

import "time"

// Measure holds one Metric per step.
type Measure interface {
	AddMetric(name string, concurrent int) Metric
	GetMetric(name string) Metric
	AllMetrics() map[string]Metric
}

// Metric accumulates the durations of a single step.
type Metric interface {
	AddDuration(elapsed time.Duration)
	AddTransportDuration(inputStepName string, elapsed time.Duration)
	Count() int64
	AVGDuration() time.Duration
	TotalComputation() time.Duration
	AVGTransportDuration() map[string]*TransportInfo
	SetTotalDuration(endDuration time.Duration)
	GetTotalDuration() time.Duration
	AllTransports() map[string]*TransportInfo
}
