// Package journal records every evaluated pass to the decision store without
// blocking the tick loop.
package journal

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/driver"
	"github.com/cory-johannsen/totembot/internal/storage/postgres"
)

// Defaults for NewWriter.
const (
	DefaultBatchSize  = 32
	DefaultFlushEvery = time.Second
)

// Store persists decision batches.
type Store interface {
	InsertDecisions(ctx context.Context, ds []postgres.Decision) error
}

// Stats counts journal outcomes.
type Stats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Writer buffers decisions and flushes them in batches.
//
// Invariant: Record never blocks; a full buffer drops the decision.
type Writer struct {
	store   Store
	session uuid.UUID
	logger  *zap.Logger

	ch         chan postgres.Decision
	batchSize  int
	flushEvery time.Duration

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
}

// NewWriter creates a writer for one session.
//
// Precondition: store and logger must not be nil; buffer >= 1.
func NewWriter(store Store, session uuid.UUID, buffer int, logger *zap.Logger) *Writer {
	if store == nil {
		panic("journal.NewWriter: store must not be nil")
	}
	if logger == nil {
		panic("journal.NewWriter: logger must not be nil")
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Writer{
		store:      store,
		session:    session,
		logger:     logger,
		ch:         make(chan postgres.Decision, buffer),
		batchSize:  DefaultBatchSize,
		flushEvery: DefaultFlushEvery,
		stop:       make(chan struct{}),
	}
}

// FromPass converts a driver pass into a stored decision.
func FromPass(session uuid.UUID, p driver.Pass) postgres.Decision {
	actions := p.Actions
	if actions == nil {
		actions = []driver.Action{}
	}
	raw, err := json.Marshal(actions)
	if err != nil {
		raw = json.RawMessage("[]")
	}
	return postgres.Decision{
		ID:        uuid.New(),
		SessionID: session,
		Seq:       int64(p.Seq),
		At:        p.At,
		Buff:      p.Buff.String(),
		Combat:    p.Combat.String(),
		TargetID:  p.Target,
		Health:    p.Health,
		Mana:      p.Mana,
		Actions:   raw,
		Elapsed:   p.Elapsed,
	}
}

// Record queues p. It is suitable as a driver.Ticker OnPass hook.
func (w *Writer) Record(p driver.Pass) {
	select {
	case w.ch <- FromPass(w.session, p):
	default:
		if w.dropped.Add(1) == 1 {
			w.logger.Warn("journal: buffer full, dropping decisions")
		}
	}
}

// Stats returns the current counters.
func (w *Writer) Stats() Stats {
	return Stats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
	}
}

// Start flushes queued decisions until ctx is cancelled or Stop is called,
// then drains what is left.
func (w *Writer) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	batch := make([]postgres.Decision, 0, w.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := w.store.InsertDecisions(ctx, batch); err != nil {
			w.failed.Add(uint64(len(batch)))
			w.logger.Warn("journal: flush failed", zap.Int("decisions", len(batch)), zap.Error(err))
		} else {
			w.written.Add(uint64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case d := <-w.ch:
			batch = append(batch, d)
			if len(batch) >= w.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			w.drain(&batch, flush)
			return nil
		case <-w.stop:
			w.drain(&batch, flush)
			return nil
		}
	}
}

func (w *Writer) drain(batch *[]postgres.Decision, flush func(context.Context)) {
	for {
		select {
		case d := <-w.ch:
			*batch = append(*batch, d)
		default:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			flush(ctx)
			return
		}
	}
}

// Stop ends a running Start after a final flush. Safe to call more than once.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
