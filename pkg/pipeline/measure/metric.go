package measure

import (
	"sync"
	"time"
)

// TransportInfo is the time a step waited on one of its inputs.
type TransportInfo struct {
	Elapsed time.Duration
	total   int64
}

type DefaultMetric struct {
	mu            sync.Mutex
	allTransports map[string]*TransportInfo
	endDuration   time.Duration
	stepElapsed   time.Duration
	total         int64
	concurrent    int
}

func (mt *DefaultMetric) AddDuration(elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.total++
	mt.stepElapsed += elapsed
}

func (mt *DefaultMetric) Count() int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.total
}

func (mt *DefaultMetric) TotalComputation() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.stepElapsed
}

func (mt *DefaultMetric) SetTotalDuration(endDuration time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.endDuration = endDuration
}

func (mt *DefaultMetric) GetTotalDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.endDuration
}

func (mt *DefaultMetric) AddTransportDuration(inputStepName string, elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	ch, ok := mt.allTransports[inputStepName]
	if !ok {
		ch = &TransportInfo{}
		mt.allTransports[inputStepName] = ch
	}
	ch.Elapsed += elapsed
	ch.total++
}

func (mt *DefaultMetric) AVGDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.total == 0 {
		return 0
	}

	return round(time.Duration(float64(mt.stepElapsed) / float64(mt.total)))
}

// AVGTransportDuration returns the mean wait per input, divided by the step
// concurrency. The stored totals are left untouched.
func (mt *DefaultMetric) AVGTransportDuration() map[string]*TransportInfo {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	avg := make(map[string]*TransportInfo, len(mt.allTransports))
	for name, ch := range mt.allTransports {
		info := &TransportInfo{total: ch.total}
		if ch.total > 0 {
			info.Elapsed = round(time.Duration(float64(ch.Elapsed) / float64(ch.total) / float64(mt.concurrent)))
		}
		avg[name] = info
	}

	return avg
}

func (mt *DefaultMetric) AllTransports() map[string]*TransportInfo {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	all := make(map[string]*TransportInfo, len(mt.allTransports))
	for name, ch := range mt.allTransports {
		all[name] = &TransportInfo{Elapsed: ch.Elapsed, total: ch.total}
	}

	return all
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Hour:
		return d.Round(time.Minute)
	case d > time.Second:
		return d.Round(time.Second)
	case d > time.Millisecond:
		return d.Round(time.Millisecond)
	case d > time.Microsecond:
		return d.Round(time.Microsecond)
	}

	return d
}
