// Package runtime wires heap, book, linker, rules, redex bags and the
// scheduler into a single driveable evaluation, the glue a host (cmd/hvmc,
// or a test) needs instead of constructing every component by hand.
package runtime

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/hvmcore/hvmc/internal/book"
	"github.com/hvmcore/hvmc/internal/config"
	"github.com/hvmcore/hvmc/internal/heap"
	"github.com/hvmcore/hvmc/internal/instantiate"
	"github.com/hvmcore/hvmc/internal/linker"
	"github.com/hvmcore/hvmc/internal/netinst"
	"github.com/hvmcore/hvmc/internal/netsyntax"
	"github.com/hvmcore/hvmc/internal/port"
	"github.com/hvmcore/hvmc/internal/redex"
	"github.com/hvmcore/hvmc/internal/rterror"
	"github.com/hvmcore/hvmc/internal/rules"
	"github.com/hvmcore/hvmc/internal/scheduler"
	"github.com/hvmcore/hvmc/internal/telemetry"
)

// Runtime owns the shared heap and book for one evaluation and the
// per-worker Nets the scheduler drives to quiescence.
type Runtime struct {
	log     hclog.Logger
	cfg     config.Config
	Heap    *heap.Heap
	Book    *book.Book
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer

	nets []*netinst.Net
	sch  *scheduler.Scheduler

	Root port.Port

	prevSteals, prevStealFails uint64
}

// Option customizes construction.
type Option func(*Runtime)

// WithLogger overrides the default null logger.
func WithLogger(l hclog.Logger) Option { return func(r *Runtime) { r.log = l } }

// New builds a Runtime over a book and an entry definition name, ready to
// Run. entryDef is instantiated against a freshly allocated root wire.
func New(cfg config.Config, bk *book.Book, entryDef string, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	r := &Runtime{
		log:     hclog.NewNullLogger(),
		cfg:     cfg,
		Heap:    heap.New(cfg.HeapSize),
		Book:    bk,
		Metrics: telemetry.NewMetrics(),
		Tracer:  telemetry.NewTracer(4096),
	}
	for _, opt := range opts {
		opt(r)
	}
	if cfg.Trace {
		r.Tracer.Enable()
	}
	r.log = r.log.Named("runtime")

	idx, ok := bk.Lookup(entryDef)
	if !ok {
		return nil, errors.Errorf("runtime: undefined entry definition %q", entryDef)
	}

	workers := cfg.ResolveWorkers()
	r.nets = make([]*netinst.Net, workers)
	var entryEngine *rules.Engine
	for i := 0; i < workers; i++ {
		bag := redex.New()
		eng := &rules.Engine{
			Heap:     r.Heap,
			Stripe:   r.Heap.NewStripe(),
			Linker:   linker.New(r.Heap, bag),
			Book:     bk,
			Bag:      bag,
			Overflow: cfg.OverflowMode(),
		}
		r.nets[i] = netinst.New(r.Heap, eng)
		r.nets[i].Metrics = r.Metrics
		r.nets[i].Tracer = r.Tracer
		if i == 0 {
			entryEngine = eng
		}
	}

	rootNode, err := entryEngine.Stripe.Alloc()
	if err != nil {
		return nil, err
	}
	r.Root = port.NewAux(port.VAR, 0, rootNode, 0)
	r.nets[0].Root = r.Root

	def := bk.Def(idx)
	if err := instantiate.Instantiate(r.Heap, entryEngine.Stripe, entryEngine.Linker, def, r.Root); err != nil {
		return nil, err
	}

	r.sch = scheduler.New(r.log.Named("scheduler"), scheduler.Config{
		Workers:             workers,
		StackGuardDepth:     cfg.StackGuardDepth,
		RedexBudgetPerSteal: cfg.RedexBudgetPerSteal,
	}, r.nets)
	return r, nil
}

// NewFromSource parses source with internal/netsyntax, builds a book, and
// returns a Runtime ready to evaluate entryDef (the CLI's "run" subcommand
// path).
func NewFromSource(cfg config.Config, source, entryDef string, opts ...Option) (*Runtime, error) {
	bk, err := netsyntax.Parse(source)
	if err != nil {
		return nil, errors.Wrap(err, "parsing net source")
	}
	return New(cfg, bk, entryDef, opts...)
}

// Run drives every worker to quiescence or the first fatal error.
func (r *Runtime) Run(ctx context.Context) error {
	r.log.Debug("starting run", "workers", len(r.nets), "heap_capacity", r.Heap.Capacity())
	err := r.sch.Run(ctx)
	r.Metrics.SampleHeap(r.Heap.Stats())
	r.Metrics.SampleScheduler(&r.prevSteals, &r.prevStealFails, r.sch.Stats())
	if err != nil {
		if kind := rterror.KindOf(err); kind != rterror.KindNone {
			r.log.Error("run failed", "kind", kind, "error", err)
		}
		return err
	}
	r.log.Debug("run reached quiescence", "interactions", r.sch.Stats().Interactions)
	return nil
}

// Stats returns scheduler-wide interaction/steal counters.
func (r *Runtime) Stats() scheduler.Stats { return r.sch.Stats() }

// RootValue returns the final resolved value of the root port, following
// VAR/RED indirection chains to a principal port.
func (r *Runtime) RootValue() port.Port {
	p := r.Root
	for p.Tag() == port.VAR || p.Tag() == port.RED {
		next := r.Heap.Get(p.NodeIndex(), p.Slot())
		if next == p || next.IsLock() {
			return p
		}
		p = next
	}
	return p
}

// String renders the root value using the textual grammar's leaf forms.
func (r *Runtime) String() string { return netsyntax.String(r.RootValue()) }
