package metrics

import (
	"sort"
	"strings"
	"sync"
)

// Memory keeps samples in process.
type Memory struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{counters: map[string]float64{}, samples: map[string][]float64{}}
}

func (m *Memory) IncCounter(name string, delta float64, labels Labels) {
	m.mu.Lock()
	m.counters[Key(name, labels)] += delta
	m.mu.Unlock()
}

func (m *Memory) ObserveHistogram(name string, value float64, labels Labels) {
	m.mu.Lock()
	k := Key(name, labels)
	m.samples[k] = append(m.samples[k], value)
	m.mu.Unlock()
}

// Counter returns the value of a counter series.
func (m *Memory) Counter(name string, labels Labels) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[Key(name, labels)]
}

// Samples returns a copy of a histogram series.
func (m *Memory) Samples(name string, labels Labels) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.samples[Key(name, labels)]...)
}

// Key renders name{k=v,...} with labels sorted by key.
func Key(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}
