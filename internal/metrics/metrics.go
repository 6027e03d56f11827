// Package metrics is a small in-memory registry exposed as JSON on the
// daemon. Counters and timers only; nothing is exported to an external system.
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Metric is one counter value with metadata.
type Metric struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
	LastUpdate time.Time         `json:"last_update"`
}

// TimerMetric aggregates operation durations.
type TimerMetric struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum_ms"`
	Min     float64 `json:"min_ms"`
	Max     float64 `json:"max_ms"`
	Average float64 `json:"avg_ms"`
}

// Registry manages all metrics in memory
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	timers    map[string]*TimerMetric
	startTime time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		timers:    make(map[string]*TimerMetric),
		startTime: time.Now(),
	}
}

var globalRegistry = NewRegistry()

// GetRegistry returns the process-wide registry.
func GetRegistry() *Registry {
	return globalRegistry
}

// IncrementCounter bumps a counter by one.
func (r *Registry) IncrementCounter(name string, labels map[string]string) {
	r.AddToCounter(name, 1, labels)
}

// AddToCounter adds an arbitrary delta to a counter.
func (r *Registry) AddToCounter(name string, delta float64, labels map[string]string) {
	key := metricKey(name, labels)

	r.mu.Lock()
	defer r.mu.Unlock()

	metric, ok := r.counters[key]
	if !ok {
		metric = &Metric{Name: name, Labels: labels}
		r.counters[key] = metric
	}
	metric.Value += delta
	metric.LastUpdate = time.Now()
}

// RecordTimer records one operation duration.
func (r *Registry) RecordTimer(name string, d time.Duration, labels map[string]string) {
	key := metricKey(name, labels)
	ms := float64(d.Milliseconds())

	r.mu.Lock()
	defer r.mu.Unlock()

	timer, ok := r.timers[key]
	if !ok {
		timer = &TimerMetric{Min: ms, Max: ms}
		r.timers[key] = timer
	}
	timer.Count++
	timer.Sum += ms
	if ms < timer.Min {
		timer.Min = ms
	}
	if ms > timer.Max {
		timer.Max = ms
	}
	timer.Average = timer.Sum / float64(timer.Count)
}

// Snapshot returns an export-ready copy of everything collected so far.
func (r *Registry) Snapshot() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counters := make(map[string]*Metric, len(r.counters))
	for key, metric := range r.counters {
		copied := *metric
		counters[key] = &copied
	}
	timers := make(map[string]*TimerMetric, len(r.timers))
	for key, timer := range r.timers {
		copied := *timer
		timers[key] = &copied
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(r.startTime).Seconds(),
		"counters":       counters,
		"timers":         timers,
	}
}

// Package-level convenience wrappers over the global registry.

func IncrementCounter(name string, labels map[string]string) {
	globalRegistry.IncrementCounter(name, labels)
}

func AddToCounter(name string, delta float64, labels map[string]string) {
	globalRegistry.AddToCounter(name, delta, labels)
}

func RecordTimer(name string, d time.Duration, labels map[string]string) {
	globalRegistry.RecordTimer(name, d, labels)
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := name
	for _, k := range keys {
		key += fmt.Sprintf(",%s=%s", k, labels[k])
	}
	return key
}
