// Package telemetry provides ambient observability for a run: Prometheus
// counters/gauges for interaction, heap and scheduler activity, plus an
// atomic fixed-capacity trace event feed decoupled from Prometheus scraping,
// generalized into a registrable recorder any net/scheduler combination can
// share (see DESIGN.md).
package telemetry

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvmcore/hvmc/internal/heap"
	"github.com/hvmcore/hvmc/internal/port"
	"github.com/hvmcore/hvmc/internal/rules"
	"github.com/hvmcore/hvmc/internal/scheduler"
)

// Metrics wraps a Prometheus registry with the gauges/counters an
// operational deployment needs even though they are not part of the
// combinator semantics itself.
type Metrics struct {
	Registry *prometheus.Registry

	Interactions *prometheus.CounterVec
	HeapNodes    *prometheus.GaugeVec
	Workers      prometheus.Gauge
	Steals       prometheus.Counter
	StealFails   prometheus.Counter
}

// NewMetrics constructs and registers every collector against a fresh
// registry, so multiple runs in one process (e.g. in tests) never collide
// on the default global registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hvmc",
			Name:      "interactions_total",
			Help:      "Interactions performed, by rule kind.",
		}, []string{"rule"}),
		HeapNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hvmc",
			Name:      "heap_nodes",
			Help:      "Heap node counts by state (allocated, freed, capacity).",
		}, []string{"state"}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hvmc",
			Name:      "workers_active",
			Help:      "Number of workers currently holding an active redex.",
		}),
		Steals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hvmc",
			Name:      "steals_total",
			Help:      "Successful work-stealing attempts.",
		}),
		StealFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hvmc",
			Name:      "steal_failures_total",
			Help:      "Work-stealing attempts that found nothing to steal.",
		}),
	}
	reg.MustRegister(m.Interactions, m.HeapNodes, m.Workers, m.Steals, m.StealFails)
	return m
}

var ruleNames = map[rules.Kind]string{
	rules.KindVoid:       "void",
	rules.KindErase:      "erase",
	rules.KindAnnihilate: "annihilate",
	rules.KindCommute:    "commute",
	rules.KindCall:       "call",
	rules.KindOperate:    "operate",
	rules.KindOperate1:   "operate1",
	rules.KindMatch:      "match",
}

// ObserveInteraction increments the per-rule counter.
func (m *Metrics) ObserveInteraction(k rules.Kind) {
	m.Interactions.WithLabelValues(ruleNames[k]).Inc()
}

// SampleHeap pushes a heap.Stats snapshot into the gauges. Call on a
// periodic scrape timer or at quiescence, not on the hot reduction path.
func (m *Metrics) SampleHeap(s heap.Stats) {
	m.HeapNodes.WithLabelValues("allocated").Set(float64(s.Allocated))
	m.HeapNodes.WithLabelValues("freed").Set(float64(s.Freed))
	m.HeapNodes.WithLabelValues("capacity").Set(float64(s.Capacity))
}

// SampleScheduler pushes scheduler.Stats into the steal counters. Counters
// are monotonic, so this adds the delta since the last sample.
func (m *Metrics) SampleScheduler(prevSteals, prevFails *uint64, s scheduler.Stats) {
	if d := s.Steals - *prevSteals; d > 0 {
		m.Steals.Add(float64(d))
	}
	if d := s.StealFails - *prevFails; d > 0 {
		m.StealFails.Add(float64(d))
	}
	*prevSteals, *prevFails = s.Steals, s.StealFails
}

// Event is one recorded interaction, for the trace ring buffer.
type Event struct {
	Step uint64
	Kind rules.Kind
	A, B port.Port
}

// Tracer is a fixed-capacity buffer of the first interactions recorded;
// once it is full, later interactions are not kept.
type Tracer struct {
	buf      []Event
	cap      uint64
	idx      atomic.Uint64
	enabled  atomic.Bool
}

// NewTracer builds a disabled tracer with room for capacity events.
func NewTracer(capacity int) *Tracer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Tracer{buf: make([]Event, capacity), cap: uint64(capacity)}
}

func (t *Tracer) Enable()  { t.enabled.Store(true) }
func (t *Tracer) Disable() { t.enabled.Store(false) }

// Record appends an event if tracing is enabled; a full buffer silently
// drops further events rather than blocking a worker, since the hot
// reduction path must stay allocation- and lock-free.
func (t *Tracer) Record(kind rules.Kind, a, b port.Port) {
	if !t.enabled.Load() {
		return
	}
	idx := t.idx.Add(1) - 1
	if idx >= t.cap {
		return
	}
	t.buf[idx] = Event{Step: idx, Kind: kind, A: a, B: b}
}

// Snapshot copies out every event recorded so far, in order.
func (t *Tracer) Snapshot() []Event {
	count := t.idx.Load()
	if count > t.cap {
		count = t.cap
	}
	out := make([]Event, count)
	copy(out, t.buf[:count])
	return out
}
