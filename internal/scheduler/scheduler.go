// Package scheduler implements the work-stealing scheduler: a fixed pool of
// W workers, each driving its own internal/netinst.Net, stealing half of a
// randomly chosen peer's slow redexes when its own bag runs dry, and
// detecting quiescence (every worker idle and empty) to stop the run.
//
// A per-worker-bag design calls for direct steal calls against a peer's
// bag rather than a shared channel hand-off; see DESIGN.md. The
// worker-goroutine + sync.WaitGroup launch idiom is otherwise unchanged.
package scheduler

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/hvmcore/hvmc/internal/netinst"
	"github.com/hvmcore/hvmc/internal/rterror"
)

// Config controls pool shape, the stack guard, and steal behavior.
type Config struct {
	Workers             int
	StackGuardDepth     int
	RedexBudgetPerSteal int // caps redexes moved per steal; 0 means uncapped (half the slow class)
}

// Stats is a point-in-time snapshot of scheduler activity for
// internal/telemetry.
type Stats struct {
	Interactions uint64
	Steals       uint64
	StealFails   uint64
}

// Scheduler drives a fixed pool of workers, each owning one Net, to
// quiescence or the first fatal error.
type Scheduler struct {
	log     hclog.Logger
	cfg     Config
	workers []*netinst.Net

	steals     atomic.Uint64
	stealFails atomic.Uint64

	stopped atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
	idle int
}

// New builds a scheduler over an already-constructed slice of per-worker
// Net instances.
func New(log hclog.Logger, cfg Config, workers []*netinst.Net) *Scheduler {
	s := &Scheduler{log: log, cfg: cfg, workers: workers}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Stop requests every worker to return at its next opportunity.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Run launches one goroutine per worker and blocks until every worker is
// simultaneously idle and empty (quiescence), ctx is canceled, Stop is
// called, or a worker reports a fatal error.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(s.workers))

	for id := range s.workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := s.runWorker(ctx, id); err != nil {
				errs <- err
			}
		}(id)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) runWorker(ctx context.Context, id int) error {
	net := s.workers[id]
	depth := 0

	for {
		if ctx.Err() != nil || s.stopped.Load() {
			return nil
		}

		more, err := net.Step()
		if err != nil {
			s.Stop()
			return err
		}
		if more {
			depth = 0
			continue
		}

		if stolen := s.stealFrom(id); stolen {
			depth++
			if s.cfg.StackGuardDepth > 0 && depth > s.cfg.StackGuardDepth {
				s.Stop()
				return rterror.StackOverflow(depth)
			}
			continue
		}

		if s.goIdle(ctx, id) {
			return nil // quiescent
		}
	}
}

// stealFrom picks a random peer (other than id) and moves half its slow
// redexes into this worker's bag.
func (s *Scheduler) stealFrom(id int) bool {
	n := len(s.workers)
	if n < 2 {
		return false
	}
	start := rand.IntN(n)
	for i := 0; i < n; i++ {
		victim := (start + i) % n
		if victim == id {
			continue
		}
		stolen := s.workers[victim].Bag.StealHalf(s.cfg.RedexBudgetPerSteal)
		if len(stolen) > 0 {
			s.workers[id].Bag.Donate(stolen)
			s.steals.Add(1)
			return true
		}
	}
	s.stealFails.Add(1)
	return false
}

// goIdle marks this worker idle and parks on the condition variable. It
// returns true once every worker is simultaneously idle (quiescence
// detected), at which point it wakes the rest of the pool so they exit too.
func (s *Scheduler) goIdle(ctx context.Context, id int) bool {
	s.mu.Lock()
	s.idle++
	allIdle := s.idle == len(s.workers)
	if allIdle {
		s.cond.Broadcast()
		s.mu.Unlock()
		s.workers[id].SetActive(false)
		return true
	}

	for s.idle < len(s.workers) && ctx.Err() == nil && !s.stopped.Load() {
		s.cond.Wait()
		if s.idle == len(s.workers) {
			break
		}
	}
	done := s.idle == len(s.workers) || ctx.Err() != nil || s.stopped.Load()
	s.idle--
	s.mu.Unlock()
	return done
}

// Stats returns a snapshot of steal activity across the pool.
func (s *Scheduler) Stats() Stats {
	var total uint64
	for _, w := range s.workers {
		total += w.Counters.Total()
	}
	return Stats{
		Interactions: total,
		Steals:       s.steals.Load(),
		StealFails:   s.stealFails.Load(),
	}
}
