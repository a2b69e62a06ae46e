// Package driver feeds the newest world snapshot to the routine on a fixed
// interval.
package driver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/engine/behavior"
	"github.com/cory-johannsen/totembot/internal/engine/target"
	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Evaluator is the engine surface the ticker drives.
type Evaluator interface {
	EvaluateBuff(s *world.Snapshot) behavior.Status
	EvaluateCombat(s *world.Snapshot) behavior.Status
}

// Factory builds the Evaluator from the first snapshot the ticker sees. The
// routine needs a spell book to decide which curses to register, so it cannot
// exist before the game client has reported one.
type Factory func(first *world.Snapshot) (Evaluator, error)

// Pass is the outcome of one evaluation.
type Pass struct {
	Seq     uint64
	At      time.Time
	Buff    behavior.Status
	Combat  behavior.Status
	Target  int64
	Health  float64
	Mana    float64
	Actions []Action
	Elapsed time.Duration
}

// Stats summarizes ticker activity.
type Stats struct {
	Passes   uint64    `json:"passes"`
	Skipped  uint64    `json:"skipped"`
	Received uint64    `json:"received"`
	Ready    bool      `json:"ready"`
	LastPass time.Time `json:"last_pass"`
}

// Ticker evaluates the newest unseen snapshot once per interval.
//
// Invariant: at most one pass runs at a time; a snapshot is evaluated at most once.
type Ticker struct {
	interval time.Duration
	factory  Factory
	recorder *Recorder
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	latest   *world.Snapshot
	seq      uint64
	seen     uint64
	stats    Stats
	onPass   []func(Pass)
	stopOnce sync.Once
	stop     chan struct{}

	// passMu serializes passes and guards eval.
	passMu sync.Mutex
	eval   Evaluator
}

// New returns a ticker that fires every interval. recorder may be nil, in
// which case passes carry no actions.
//
// Precondition: interval must be > 0; factory and logger must not be nil.
func New(interval time.Duration, factory Factory, recorder *Recorder, logger *zap.Logger) *Ticker {
	if interval <= 0 {
		panic("driver.New: interval must be > 0")
	}
	if factory == nil {
		panic("driver.New: factory must not be nil")
	}
	if logger == nil {
		panic("driver.New: logger must not be nil")
	}
	return &Ticker{
		interval: interval,
		factory:  factory,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// OnPass registers fn to be called after every pass, on the ticker goroutine.
func (t *Ticker) OnPass(fn func(Pass)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPass = append(t.onPass, fn)
}

// Offer replaces the pending snapshot with s. An unevaluated predecessor is
// counted as skipped.
//
// Postcondition: returns the sequence number assigned to s.
func (t *Ticker) Offer(s *world.Snapshot) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest != nil && t.seq > t.seen {
		t.stats.Skipped++
	}
	t.seq++
	t.latest = s
	t.stats.Received++
	return t.seq
}

// Stats returns a copy of the current counters.
func (t *Ticker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Tick evaluates the pending snapshot, if any, buff tree first.
//
// Postcondition: returns false when there was no unseen snapshot or the
// evaluator could not be built.
func (t *Ticker) Tick() (Pass, bool) {
	t.passMu.Lock()
	defer t.passMu.Unlock()

	t.mu.Lock()
	s, seq := t.latest, t.seq
	if s == nil || seq == t.seen {
		t.mu.Unlock()
		return Pass{}, false
	}
	t.seen = seq
	t.mu.Unlock()

	if t.eval == nil {
		eval, err := t.factory(s)
		if err != nil {
			t.logger.Error("driver: building routine", zap.Uint64("seq", seq), zap.Error(err))
			return Pass{}, false
		}
		t.eval = eval
		t.mu.Lock()
		t.stats.Ready = true
		t.mu.Unlock()
	}

	start := t.now()
	p := Pass{
		Seq:    seq,
		At:     start,
		Health: s.Self.HealthRatio,
		Mana:   s.Self.ManaRatio,
	}
	if c := target.Resolve(s); c != nil {
		p.Target = c.ID
	}
	p.Buff = t.eval.EvaluateBuff(s)
	p.Combat = t.eval.EvaluateCombat(s)
	p.Elapsed = t.now().Sub(start)
	if t.recorder != nil {
		p.Actions = t.recorder.Drain()
	}

	t.mu.Lock()
	t.stats.Passes++
	t.stats.LastPass = start
	hooks := append([](func(Pass))(nil), t.onPass...)
	t.mu.Unlock()

	t.logger.Debug("driver: pass",
		zap.Uint64("seq", seq),
		zap.Stringer("buff", p.Buff),
		zap.Stringer("combat", p.Combat),
		zap.Int("actions", len(p.Actions)),
		zap.Duration("elapsed", p.Elapsed),
	)
	for _, fn := range hooks {
		fn(p)
	}
	return p, true
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
//
// Postcondition: a pass is attempted once per interval. On return an
// evaluator with a Dispose method has been disposed.
func (t *Ticker) Start(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	defer t.dispose()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.stop:
			return nil
		case <-ticker.C:
			t.Tick()
		}
	}
}

func (t *Ticker) dispose() {
	t.passMu.Lock()
	defer t.passMu.Unlock()
	if d, ok := t.eval.(interface{ Dispose() }); ok {
		d.Dispose()
		t.logger.Info("driver: routine disposed")
	}
}

// Stop ends a running Start. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}
