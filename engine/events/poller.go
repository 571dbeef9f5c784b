package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nathoo/condcore/engine/eval"
)

// Handler receives the transitions of one poll. It is not called for polls
// without transitions.
type Handler func([]Transition)

// Poller runs a Monitor on a cron schedule such as "@every 1s" or
// "*/5 * * * *".
type Poller struct {
	monitor  *Monitor
	src      eval.PredicateSource
	handler  Handler
	schedule string
	log      zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewPoller validates schedule and creates a stopped poller.
func NewPoller(m *Monitor, src eval.PredicateSource, schedule string, h Handler, log zerolog.Logger) (*Poller, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", schedule, err)
	}
	p := &Poller{
		monitor:  m,
		src:      src,
		handler:  h,
		schedule: schedule,
		log:      log.With().Str("component", "events.poller").Logger(),
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	if _, err := p.cron.AddFunc(schedule, p.Tick); err != nil {
		return nil, fmt.Errorf("failed to schedule polling: %w", err)
	}
	return p, nil
}

// Tick polls once and delivers any transitions to the handler.
func (p *Poller) Tick() {
	transitions := p.monitor.Poll(p.src)
	for _, t := range transitions {
		ev := p.log.Info()
		if t.Err != nil {
			ev = p.log.Warn().Err(t.Err)
		}
		ev.Str("key", t.Key).
			Str("from", string(t.From)).
			Str("to", string(t.To)).
			Msg("verdict changed")
	}
	if len(transitions) > 0 && p.handler != nil {
		p.handler(transitions)
	}
}

// Start begins scheduled polling. Starting a running poller is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.cron.Start()
	p.running = true
	p.log.Info().Str("schedule", p.schedule).Strs("keys", p.monitor.Keys()).Msg("poller started")
}

// Stop halts polling and waits for a running tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.running = false
	p.log.Info().Msg("poller stopped")
}

// NextRun returns the next scheduled poll, or the zero time when stopped.
func (p *Poller) NextRun() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return time.Time{}
	}
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
