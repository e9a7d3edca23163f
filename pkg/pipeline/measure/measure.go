package measure

import (
	"sync"
)

// DefaultMeasure keeps metrics in memory.
type DefaultMeasure struct {
	mu    sync.RWMutex
	steps map[string]Metric
}

func NewDefaultMeasure() *DefaultMeasure {
	return &DefaultMeasure{
		steps: make(map[string]Metric),
	}
}

// AddMetric registers a step. Registering the same name twice keeps the first
// metric.
func (m *DefaultMeasure) AddMetric(name string, concurrent int) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt, ok := m.steps[name]; ok {
		return mt
	}
	if concurrent <= 0 {
		concurrent = 1
	}
	mt := &DefaultMetric{
		allTransports: make(map[string]*TransportInfo),
		concurrent:    concurrent,
	}
	m.steps[name] = mt

	return mt
}

func (m *DefaultMeasure) GetMetric(name string) Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.steps[name]
}

func (m *DefaultMeasure) AllMetrics() map[string]Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make(map[string]Metric, len(m.steps))
	for name, mt := range m.steps {
		all[name] = mt
	}

	return all
}

var _ Measure = (*DefaultMeasure)(nil)
