package resolve

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"voicelog/action"
)

type job struct {
	generation uint64
	item       action.PendingItem
}

// Update is one finished resolution, addressed back to its meal item.
// Generation identifies the planning turn that queued the work; consumers
// drop updates whose generation is no longer current.
type Update struct {
	Generation uint64
	ActionID   string
	ItemIndex  int
	Query      string
	Match      *Match
	Err        error
}

// Pool resolves meal items in the background through a fixed set of workers
// sharing one queue, capping total parallel lookups no matter how many items
// a turn produces.
type Pool struct {
	resolver *Resolver
	workers  int
	queue    chan job
	updates  chan Update
	gen      atomic.Uint64
	startml  sync.Once
	wg       sync.WaitGroup
}

func NewPool(resolver *Resolver, workers int) *Pool {
	if workers <= 0 {
		workers = 3
	}
	return &Pool{
		resolver: resolver,
		workers:  workers,
		queue:    make(chan job, 64),
		updates:  make(chan Update, 64),
	}
}

// Start launches the workers. They exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.startml.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx, i)
		}
	})
}

// Updates is the stream of finished resolutions for the owner to fold into
// the action list.
func (p *Pool) Updates() <-chan Update { return p.updates }

// Generation reports the current planning-turn generation.
func (p *Pool) Generation() uint64 { return p.gen.Load() }

// Dispatch queues resolution work for a fresh planning turn and returns the
// new generation. Earlier generations are not cancelled; their results are
// discarded on arrival instead.
func (p *Pool) Dispatch(items []action.PendingItem) uint64 {
	g := p.gen.Add(1)
	for _, it := range items {
		select {
		case p.queue <- job{generation: g, item: it}:
		default:
			slog.Warn("RESOLVER: Queue full, dropping item", "query", it.Query)
		}
	}
	if len(items) > 0 {
		slog.Info("RESOLVER: Dispatched batch", "generation", g, "items", len(items))
	}
	return g
}

// MarkResolving flags the addressed items before Dispatch so the UI can show
// spinners; pure structural-copy update.
func (p *Pool) MarkResolving(actions []action.Action, items []action.PendingItem) []action.Action {
	return markResolving(actions, items)
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			if j.generation != p.gen.Load() {
				slog.Debug("RESOLVER: Skipping stale job", "generation", j.generation, "query", j.item.Query)
				continue
			}
			match, err := p.resolver.Resolve(ctx, j.item.Query)
			u := Update{
				Generation: j.generation,
				ActionID:   j.item.ActionID,
				ItemIndex:  j.item.ItemIndex,
				Query:      j.item.Query,
				Match:      match,
				Err:        err,
			}
			select {
			case p.updates <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Wait blocks until all workers have exited; for orderly shutdown in tests.
func (p *Pool) Wait() { p.wg.Wait() }
