package journal_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/totembot/internal/driver"
	"github.com/cory-johannsen/totembot/internal/engine/behavior"
	"github.com/cory-johannsen/totembot/internal/engine/world"
	"github.com/cory-johannsen/totembot/internal/journal"
	"github.com/cory-johannsen/totembot/internal/storage/postgres"
)

type memStore struct {
	mu   sync.Mutex
	rows []postgres.Decision
	err  error
}

func (m *memStore) InsertDecisions(_ context.Context, ds []postgres.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, ds...)
	return nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func pass(seq uint64) driver.Pass {
	return driver.Pass{
		Seq:    seq,
		At:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Buff:   behavior.Failed,
		Combat: behavior.Succeeded,
		Target: 9,
		Health: 0.65,
		Actions: []driver.Action{
			{Kind: "use_flask", Flask: 1},
		},
		Elapsed: time.Millisecond,
	}
}

func TestFromPass(t *testing.T) {
	session := uuid.New()
	d := journal.FromPass(session, pass(3))
	assert.Equal(t, session, d.SessionID)
	assert.NotEqual(t, uuid.Nil, d.ID)
	assert.Equal(t, int64(3), d.Seq)
	assert.Equal(t, "failed", d.Buff)
	assert.Equal(t, "succeeded", d.Combat)
	assert.Equal(t, int64(9), d.TargetID)

	var actions []driver.Action
	require.NoError(t, json.Unmarshal(d.Actions, &actions))
	assert.Equal(t, []driver.Action{{Kind: "use_flask", Flask: 1}}, actions)

	empty := journal.FromPass(session, driver.Pass{At: time.Now()})
	assert.JSONEq(t, `[]`, string(empty.Actions))
}

func TestWriter_FlushesOnStop(t *testing.T) {
	store := &memStore{}
	w := journal.NewWriter(store, uuid.New(), 16, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	for i := uint64(1); i <= 5; i++ {
		w.Record(pass(i))
	}
	w.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, 5, store.len())
	assert.Equal(t, uint64(5), w.Stats().Written)
}

func TestWriter_FullBufferDrops(t *testing.T) {
	store := &memStore{}
	w := journal.NewWriter(store, uuid.New(), 2, zaptest.NewLogger(t))
	// Not started: nothing drains the buffer.
	for i := uint64(1); i <= 5; i++ {
		w.Record(pass(i))
	}
	assert.Equal(t, uint64(3), w.Stats().Dropped)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()
	w.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, 2, store.len())
}

func TestWriter_StoreErrorCountsFailed(t *testing.T) {
	store := &memStore{err: errors.New("connection refused")}
	w := journal.NewWriter(store, uuid.New(), 8, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()
	w.Record(pass(1))
	w.Record(pass(2))
	w.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, uint64(2), w.Stats().Failed)
	assert.Zero(t, w.Stats().Written)
}

func TestWriter_RecordsTickerPasses(t *testing.T) {
	store := &memStore{}
	w := journal.NewWriter(store, uuid.New(), 8, zaptest.NewLogger(t))
	tk := driver.New(time.Second, func(*world.Snapshot) (driver.Evaluator, error) {
		return nopEval{}, nil
	}, nil, zaptest.NewLogger(t))
	tk.OnPass(w.Record)

	tk.Offer(&world.Snapshot{})
	_, ok := tk.Tick()
	require.True(t, ok)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()
	w.Stop()
	require.NoError(t, <-done)
	require.Equal(t, 1, store.len())
}

type nopEval struct{}

func (nopEval) EvaluateBuff(*world.Snapshot) behavior.Status   { return behavior.Failed }
func (nopEval) EvaluateCombat(*world.Snapshot) behavior.Status { return behavior.Failed }

func TestProperty_WrittenPlusDroppedEqualsRecorded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		buffer := rapid.IntRange(1, 10).Draw(rt, "buffer")
		n := rapid.IntRange(0, 30).Draw(rt, "n")
		store := &memStore{}
		w := journal.NewWriter(store, uuid.New(), buffer, zaptest.NewLogger(t))
		for i := 0; i < n; i++ {
			w.Record(pass(uint64(i + 1)))
		}
		done := make(chan error, 1)
		go func() { done <- w.Start(context.Background()) }()
		w.Stop()
		<-done
		st := w.Stats()
		if int(st.Written+st.Dropped) != n {
			rt.Fatalf("written %d + dropped %d != recorded %d", st.Written, st.Dropped, n)
		}
	})
}
