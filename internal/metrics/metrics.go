// Package metrics is a small rcrowley/go-metrics-style registry, in the
// idiom of the teacher's metrics package (Counter/Meter + Registry.Each):
// each stage registers a handful of named counters and meters, and
// metrics submission to an external collector stays out of scope.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Counter is a monotonically adjustable int64.
type Counter interface {
	Clear()
	Count() int64
	Dec(int64)
	Inc(int64)
}

type standardCounter struct{ count atomic.Int64 }

func NewCounter() Counter                { return &standardCounter{} }
func (c *standardCounter) Clear()        { c.count.Store(0) }
func (c *standardCounter) Count() int64  { return c.count.Load() }
func (c *standardCounter) Dec(v int64)   { c.count.Add(-v) }
func (c *standardCounter) Inc(v int64)   { c.count.Add(v) }

// Meter tracks a running count, used for rate-style stats (blobs/s sent,
// repairs/s issued). Rate computation is left to a collector; here it is
// just a name-addressable counter, matching how stages in this repo use it
// (call sites only ever Mark and read Count).
type Meter interface {
	Mark(int64)
	Count() int64
}

type standardMeter struct{ count atomic.Int64 }

func NewMeter() Meter               { return &standardMeter{} }
func (m *standardMeter) Mark(v int64) { m.count.Add(v) }
func (m *standardMeter) Count() int64 { return m.count.Load() }

// Registry is a name -> metric map, as used by every stage constructor to
// register its own counters under a stage-scoped prefix.
type Registry struct {
	mu sync.Mutex
	m  map[string]any
}

func NewRegistry() *Registry { return &Registry{m: make(map[string]any)} }

func (r *Registry) Register(name string, metric any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[name] = metric
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, name)
}

func (r *Registry) Each(f func(string, any)) {
	r.mu.Lock()
	snapshot := make(map[string]any, len(r.m))
	for k, v := range r.m {
		snapshot[k] = v
	}
	r.mu.Unlock()
	for k, v := range snapshot {
		f(k, v)
	}
}

func (r *Registry) Get(name string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[name]
}

func NewRegisteredCounter(name string, r *Registry) Counter {
	c := NewCounter()
	r.Register(name, c)
	return c
}

func NewRegisteredMeter(name string, r *Registry) Meter {
	m := NewMeter()
	r.Register(name, m)
	return m
}

func GetOrRegisterCounter(name string, r *Registry) Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.m[name]; ok {
		return v.(Counter)
	}
	c := NewCounter()
	r.m[name] = c
	return c
}

func GetOrRegisterMeter(name string, r *Registry) Meter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.m[name]; ok {
		return v.(Meter)
	}
	m := NewMeter()
	r.m[name] = m
	return m
}

// DefaultRegistry is the process-wide registry stages register onto unless
// a test supplies its own.
var DefaultRegistry = NewRegistry()
