// Package engine wraps the evaluator for hosts: it owns the current ruleset,
// swaps it atomically on reload, logs failed evaluations, records metrics and
// evaluates batches of conditions concurrently. Session builds an
// interactive inspector on top of it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nathoo/condcore/engine/eval"
	"github.com/nathoo/condcore/engine/metrics"
	"github.com/nathoo/condcore/engine/registry"
	"github.com/nathoo/condcore/types"
)

// ErrNoRuleset is returned by Reload when the loader yields nothing.
var ErrNoRuleset = errors.New("no ruleset")

// Options configures an Engine.
type Options struct {
	Eval eval.Options
	// Parallelism bounds EvaluateAll; zero or less means unbounded.
	Parallelism int
	Logger      *zerolog.Logger
	Metrics     *metrics.Collector
}

// Verdict is the outcome of one condition in EvaluateAll.
type Verdict struct {
	Value bool
	Err   error
}

type ruleset struct {
	defs *registry.Defs
	ev   *eval.Evaluator
}

// Engine is safe for concurrent use. Each evaluation runs against the
// ruleset that was current when it started.
type Engine struct {
	current     atomic.Pointer[ruleset]
	opts        eval.Options
	parallelism int
	log         zerolog.Logger
	metrics     *metrics.Collector
}

// New creates an engine over a sealed ruleset.
func New(defs *registry.Defs, opts Options) *Engine {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	e := &Engine{
		opts:        opts.Eval,
		parallelism: opts.Parallelism,
		log:         log.With().Str("component", "engine").Logger(),
		metrics:     opts.Metrics,
	}
	e.swap(defs)
	return e
}

func (e *Engine) swap(defs *registry.Defs) {
	e.current.Store(&ruleset{defs: defs, ev: eval.New(defs, e.opts)})
}

// Defs returns the current ruleset.
func (e *Engine) Defs() *registry.Defs {
	return e.current.Load().defs
}

// Evaluator returns the evaluator for the current ruleset.
func (e *Engine) Evaluator() *eval.Evaluator {
	return e.current.Load().ev
}

// Reload calls load and, on success, makes its result the current ruleset.
// On failure the previous ruleset stays in place.
func (e *Engine) Reload(load func() (*registry.Defs, error)) error {
	defs, err := load()
	if err == nil && defs == nil {
		err = ErrNoRuleset
	}
	e.metrics.RecordReload(err)
	if err != nil {
		e.log.Error().Err(err).Msg("ruleset reload failed, keeping previous ruleset")
		return err
	}
	e.swap(defs)
	e.log.Info().
		Str("title", defs.Meta.Title).
		Int("atoms", defs.Atoms.Len()).
		Int("composites", defs.Composites.Len()).
		Msg("ruleset reloaded")
	return nil
}

// Evaluate evaluates root against src.
func (e *Engine) Evaluate(root types.ConditionEntity, src eval.PredicateSource) (bool, error) {
	start := time.Now()
	v, err := e.current.Load().ev.Evaluate(root, src)
	e.observe(root.Key, v, err, time.Since(start))
	return v, err
}

// EvaluateByKey evaluates a composite by key; "" means the root.
func (e *Engine) EvaluateByKey(key string, src eval.PredicateSource) (bool, error) {
	rs := e.current.Load()
	if key == "" {
		key = rs.defs.Composites.RootKey()
	}
	start := time.Now()
	v, err := rs.ev.EvaluateByKey(key, src)
	e.observe(key, v, err, time.Since(start))
	return v, err
}

// Explain evaluates a composite by key and returns the visited tree.
func (e *Engine) Explain(key string, src eval.PredicateSource) (*eval.Trace, error) {
	rs := e.current.Load()
	if key == "" {
		key = rs.defs.Composites.RootKey()
	}
	start := time.Now()
	tr, err := rs.ev.ExplainByKey(key, src)
	var v bool
	if tr != nil {
		v = tr.Verdict
	}
	e.observe(key, v, err, time.Since(start))
	return tr, err
}

// Check evaluates key and treats any failure as false. The failure is
// logged, never swallowed silently.
func (e *Engine) Check(key string, src eval.PredicateSource) bool {
	v, err := e.EvaluateByKey(key, src)
	return err == nil && v
}

// EvaluateAll evaluates keys concurrently; nil keys means every composite.
// A failing condition is reported in its Verdict and does not stop the
// others. The returned error is non-nil only when ctx is cancelled.
func (e *Engine) EvaluateAll(ctx context.Context, keys []string, src eval.PredicateSource) (map[string]Verdict, error) {
	if keys == nil {
		keys = e.Defs().Composites.Keys()
	}

	var mu sync.Mutex
	out := make(map[string]Verdict, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	if e.parallelism > 0 {
		g.SetLimit(e.parallelism)
	}
	for _, key := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := e.EvaluateByKey(key, src)
			mu.Lock()
			out[key] = Verdict{Value: v, Err: err}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, fmt.Errorf("evaluate all: %w", err)
	}
	return out, nil
}

func (e *Engine) observe(key string, v bool, err error, d time.Duration) {
	if err == nil {
		e.metrics.RecordEvaluation(key, v, d)
		e.log.Debug().Str("key", key).Bool("verdict", v).Dur("took", d).Msg("evaluated")
		return
	}

	kind := eval.KindOf(err)
	e.metrics.RecordError(key, string(kind), d)

	ev := e.log.Warn().Err(err).
		Str("eval_id", uuid.NewString()).
		Str("key", key).
		Str("kind", string(kind))
	var ee *eval.Error
	if errors.As(err, &ee) && len(ee.Chain) > 0 {
		ev = ev.Str("chain", ee.ChainString())
	}
	ev.Msg("evaluation failed")
}
