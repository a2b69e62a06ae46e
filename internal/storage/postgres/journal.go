package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionNotFound is returned when a session lookup yields no results.
var ErrSessionNotFound = errors.New("session not found")

// Session is one run of the bot process.
type Session struct {
	ID        uuid.UUID
	Host      string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Decision is one evaluated snapshot.
type Decision struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Seq       int64
	At        time.Time
	Buff      string
	Combat    string
	TargetID  int64
	Health    float64
	Mana      float64
	// Actions is a JSON array of the dispatches made during the pass.
	Actions json.RawMessage
	Elapsed time.Duration
}

// JournalRepository persists sessions and decisions.
type JournalRepository struct {
	db *pgxpool.Pool
}

// NewJournalRepository creates a JournalRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewJournalRepository(db *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{db: db}
}

// StartSession records a new session.
//
// Postcondition: Returns the Session with ID and StartedAt set.
func (r *JournalRepository) StartSession(ctx context.Context, host string) (Session, error) {
	s := Session{ID: uuid.New(), Host: host}
	err := r.db.QueryRow(ctx,
		`INSERT INTO bot_sessions (id, host) VALUES ($1, $2) RETURNING started_at`,
		s.ID, host,
	).Scan(&s.StartedAt)
	if err != nil {
		return Session{}, fmt.Errorf("inserting session: %w", err)
	}
	return s, nil
}

// EndSession stamps ended_at on the session.
//
// Postcondition: Returns ErrSessionNotFound when id is unknown.
func (r *JournalRepository) EndSession(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE bot_sessions SET ended_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Session loads one session by id.
func (r *JournalRepository) Session(ctx context.Context, id uuid.UUID) (Session, error) {
	var s Session
	err := r.db.QueryRow(ctx,
		`SELECT id, host, started_at, ended_at FROM bot_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.Host, &s.StartedAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("querying session: %w", err)
	}
	return s, nil
}

// InsertDecisions writes decisions in a single batch. Decisions with a nil
// ID are assigned one.
//
// Postcondition: either every decision is stored or an error is returned.
func (r *JournalRepository) InsertDecisions(ctx context.Context, ds []Decision) error {
	if len(ds) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning decision batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, d := range ds {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		actions := d.Actions
		if len(actions) == 0 {
			actions = json.RawMessage("[]")
		}
		batch.Queue(
			`INSERT INTO decisions
			   (id, session_id, seq, decided_at, buff, combat, target_id, health, mana, actions, elapsed_us)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			d.ID, d.SessionID, d.Seq, d.At, d.Buff, d.Combat, d.TargetID, d.Health, d.Mana,
			[]byte(actions), d.Elapsed.Microseconds(),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting decisions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing decisions: %w", err)
	}
	return nil
}

// RecentDecisions returns up to limit decisions of a session, newest first.
func (r *JournalRepository) RecentDecisions(ctx context.Context, sessionID uuid.UUID, limit int) ([]Decision, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, seq, decided_at, buff, combat, target_id, health, mana, actions, elapsed_us
		 FROM decisions WHERE session_id = $1 ORDER BY seq DESC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d         Decision
			actions   []byte
			elapsedUS int64
		)
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Seq, &d.At, &d.Buff, &d.Combat,
			&d.TargetID, &d.Health, &d.Mana, &actions, &elapsedUS); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		d.Actions = actions
		d.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decisions: %w", err)
	}
	return out, nil
}
