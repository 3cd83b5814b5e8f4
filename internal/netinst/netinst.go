// Package netinst implements the Net instance: one running evaluation,
// holding a root port into the shared heap, a worker-local redex bag, and
// the interaction counters internal/telemetry exports.
package netinst

import (
	"sync/atomic"

	"github.com/hvmcore/hvmc/internal/heap"
	"github.com/hvmcore/hvmc/internal/linker"
	"github.com/hvmcore/hvmc/internal/port"
	"github.com/hvmcore/hvmc/internal/redex"
	"github.com/hvmcore/hvmc/internal/rules"
)

// Counters tallies interactions performed, by rule kind, for one Net. All
// fields are updated with atomic adds so a Net's counters can be read from
// another goroutine (e.g. internal/telemetry's scrape loop) without locking.
type Counters struct {
	Void       atomic.Uint64
	Erase      atomic.Uint64
	Annihilate atomic.Uint64
	Commute    atomic.Uint64
	Call       atomic.Uint64
	Operate    atomic.Uint64
	Operate1   atomic.Uint64
	Match      atomic.Uint64
}

func (c *Counters) observe(k rules.Kind) {
	switch k {
	case rules.KindVoid:
		c.Void.Add(1)
	case rules.KindErase:
		c.Erase.Add(1)
	case rules.KindAnnihilate:
		c.Annihilate.Add(1)
	case rules.KindCommute:
		c.Commute.Add(1)
	case rules.KindCall:
		c.Call.Add(1)
	case rules.KindOperate:
		c.Operate.Add(1)
	case rules.KindOperate1:
		c.Operate1.Add(1)
	case rules.KindMatch:
		c.Match.Add(1)
	}
}

// Total returns the sum of every rule counter: the total interactions
// performed.
func (c *Counters) Total() uint64 {
	return c.Void.Load() + c.Erase.Load() + c.Annihilate.Load() + c.Commute.Load() +
		c.Call.Load() + c.Operate.Load() + c.Operate1.Load() + c.Match.Load()
}

// Tracer records interactions for external inspection (internal/telemetry's
// ring buffer implements this). Defined here rather than imported so this
// package never depends on internal/telemetry, which itself depends on
// internal/scheduler, which depends on this package.
type Tracer interface {
	Record(kind rules.Kind, a, b port.Port)
}

// MetricsSink observes interaction counts for external reporting
// (internal/telemetry.Metrics implements this). See Tracer for why this is
// a local interface instead of an import.
type MetricsSink interface {
	ObserveInteraction(kind rules.Kind)
}

// Net is one worker's view of a running evaluation: a root port, the shared
// heap, a local redex bag, and an activity flag that is set while Step is
// applying a rule.
type Net struct {
	Root   port.Port
	Heap   *heap.Heap
	Stripe *heap.Stripe
	Bag    *redex.Bag
	Linker *linker.Linker
	Rules  *rules.Engine

	// Tracer and Metrics are optional; a nil value skips the corresponding
	// observation with no overhead beyond the nil check.
	Tracer  Tracer
	Metrics MetricsSink

	Counters Counters
	active   atomic.Bool
}

// New builds a Net instance bound to one worker's heap stripe and redex bag.
func New(h *heap.Heap, eng *rules.Engine) *Net {
	n := &Net{
		Heap:   h,
		Stripe: eng.Stripe,
		Bag:    eng.Bag,
		Linker: eng.Linker,
		Rules:  eng,
	}
	return n
}

// SetActive records whether this worker is mid-interaction. The scheduler's
// quiescence check counts idle workers and does not read this flag.
func (n *Net) SetActive(v bool) { n.active.Store(v) }

// Active reports the last value set by SetActive.
func (n *Net) Active() bool { return n.active.Load() }

// Step pops one redex from the local bag and applies its rule, recording the
// outcome in Counters. Returns false if the bag was empty.
func (n *Net) Step() (bool, error) {
	pair, ok := n.Bag.Pop()
	if !ok {
		return false, nil
	}
	n.SetActive(true)
	defer n.SetActive(false)

	kind, err := n.Rules.Apply(pair.A, pair.B)
	if err != nil {
		return true, err
	}
	n.Counters.observe(kind)
	if n.Metrics != nil {
		n.Metrics.ObserveInteraction(kind)
	}
	if n.Tracer != nil {
		n.Tracer.Record(kind, pair.A, pair.B)
	}
	return true, nil
}

// Drain runs Step until the local bag is empty or an error occurs.
func (n *Net) Drain() error {
	for {
		more, err := n.Step()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}
