package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obentoo/lifter/internal/manifest"
)

// Runner defaults
const (
	// DefaultWorkers is the number of items processed at once
	DefaultWorkers = 4
	// DefaultItemTimeout bounds one item from fetch to commit
	DefaultItemTimeout = 10 * time.Minute
)

// ItemProcessor runs one item to its outcome. *Processor implements it.
type ItemProcessor interface {
	Process(ctx context.Context, item manifest.Item) Outcome
}

// Runner processes many items concurrently. Items are independent: one
// item's failure never stops the others.
type Runner struct {
	proc            ItemProcessor
	templates       manifest.TemplateSource
	workers         int
	itemTimeout     time.Duration
	stopOnRateLimit bool
}

// RunnerOption is a functional option for configuring Runner
type RunnerOption func(*Runner)

// WithWorkers sets how many items run at once; values below 1 mean 1
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		r.workers = n
	}
}

// WithItemTimeout bounds each item; zero disables the bound
func WithItemTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.itemTimeout = d
	}
}

// WithStopOnRateLimit makes api_json items that have not started yet fail
// as rate limited once any item was rate limited
func WithStopOnRateLimit(stop bool) RunnerOption {
	return func(r *Runner) {
		r.stopOnRateLimit = stop
	}
}

// NewRunner creates a runner. templates is used to tell api_json items
// apart before they run.
func NewRunner(proc ItemProcessor, templates manifest.TemplateSource, opts ...RunnerOption) *Runner {
	r := &Runner{
		proc:        proc,
		templates:   templates,
		workers:     DefaultWorkers,
		itemTimeout: DefaultItemTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes items and returns their outcomes in input order.
func (r *Runner) Run(ctx context.Context, items []manifest.Item) []Outcome {
	outcomes := make([]Outcome, len(items))
	var rateLimited atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(r.workers)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			outcomes[i] = r.runOne(ctx, item, &rateLimited)
			return nil
		})
	}
	g.Wait()

	return outcomes
}

func (r *Runner) runOne(ctx context.Context, item manifest.Item, rateLimited *atomic.Bool) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Item: item.Name, Status: StatusFailed, Err: classify(err)}
	}

	if r.stopOnRateLimit && rateLimited.Load() && manifest.ResolveMethod(item, r.templates) == manifest.MethodAPIJSON {
		return Outcome{
			Item:   item.Name,
			Status: StatusFailed,
			Err:    fmt.Errorf("%w: not attempted after an earlier item was rate limited", ErrRateLimited),
		}
	}

	itemCtx := ctx
	if r.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, r.itemTimeout)
		defer cancel()
	}

	out := r.proc.Process(itemCtx, item)
	if errors.Is(out.Err, ErrRateLimited) {
		rateLimited.Store(true)
	}
	return out
}
