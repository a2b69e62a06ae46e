package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/totembot/internal/storage/postgres"
	"github.com/cory-johannsen/totembot/internal/testutil"
)

func TestJournalRepository_SessionLifecycle(t *testing.T) {
	repo := postgres.NewJournalRepository(testutil.NewPool(t))
	ctx := context.Background()

	s, err := repo.StartSession(ctx, "bot-01")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.False(t, s.StartedAt.IsZero())

	loaded, err := repo.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "bot-01", loaded.Host)
	assert.Nil(t, loaded.EndedAt)

	require.NoError(t, repo.EndSession(ctx, s.ID))
	loaded, err = repo.Session(ctx, s.ID)
	require.NoError(t, err)
	assert.NotNil(t, loaded.EndedAt)

	assert.ErrorIs(t, repo.EndSession(ctx, uuid.New()), postgres.ErrSessionNotFound)
	_, err = repo.Session(ctx, uuid.New())
	assert.ErrorIs(t, err, postgres.ErrSessionNotFound)
}

func TestJournalRepository_InsertAndRecent(t *testing.T) {
	repo := postgres.NewJournalRepository(testutil.NewPool(t))
	ctx := context.Background()

	s, err := repo.StartSession(ctx, "bot-02")
	require.NoError(t, err)

	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var ds []postgres.Decision
	for i := int64(1); i <= 5; i++ {
		ds = append(ds, postgres.Decision{
			SessionID: s.ID,
			Seq:       i,
			At:        at.Add(time.Duration(i) * 100 * time.Millisecond),
			Buff:      "failed",
			Combat:    "succeeded",
			TargetID:  42,
			Health:    0.65,
			Mana:      0.9,
			Actions:   json.RawMessage(`[{"kind":"use_flask","flask":1}]`),
			Elapsed:   250 * time.Microsecond,
		})
	}
	require.NoError(t, repo.InsertDecisions(ctx, ds))
	require.NoError(t, repo.InsertDecisions(ctx, nil))

	got, err := repo.RecentDecisions(ctx, s.ID, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(5), got[0].Seq)
	assert.Equal(t, int64(3), got[2].Seq)
	assert.Equal(t, "succeeded", got[0].Combat)
	assert.Equal(t, 250*time.Microsecond, got[0].Elapsed)
	assert.JSONEq(t, `[{"kind":"use_flask","flask":1}]`, string(got[0].Actions))
	assert.NotEqual(t, uuid.Nil, got[0].ID)
}

func TestJournalRepository_InsertUnknownSessionFailsAtomically(t *testing.T) {
	repo := postgres.NewJournalRepository(testutil.NewPool(t))
	ctx := context.Background()
	s, err := repo.StartSession(ctx, "bot-03")
	require.NoError(t, err)

	err = repo.InsertDecisions(ctx, []postgres.Decision{
		{SessionID: s.ID, Seq: 1, At: time.Now(), Buff: "failed", Combat: "failed"},
		{SessionID: uuid.New(), Seq: 2, At: time.Now(), Buff: "failed", Combat: "failed"},
	})
	require.Error(t, err)

	got, err := repo.RecentDecisions(ctx, s.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, got, "a failed batch stores nothing")
}

func TestPool_Report(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	r := pc.Pool.Report(context.Background(), time.Second)
	assert.True(t, r.Reachable)
	assert.Empty(t, r.Error)
	assert.Equal(t, int32(5), r.Pool.Max)
}
