// Package history is the optional operational sink for match outcomes
// (matchId, game mode, player ids, duration, end reason). It keeps only the
// shape every embedder needs for an ops dashboard — it does not persist
// simulation state (ticks, commands, hashes), only that a match happened
// and how it ended.
package history

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome is one completed match, ready to be recorded.
type Outcome struct {
	MatchID   string    `json:"matchId"`
	GameMode  string    `json:"gameMode"`
	PlayerIDs []string  `json:"playerIds"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	EndReason string    `json:"endReason"`
}

// DurationMs returns the match's wall-clock duration in milliseconds, for
// the JSON encoding consumed by /api/history.
func (o Outcome) DurationMs() int64 {
	return o.EndedAt.Sub(o.StartedAt).Milliseconds()
}

// Record is the persisted/returned shape of an Outcome, with a server-
// assigned row id alongside it.
type Record struct {
	ID         string   `json:"id"`
	MatchID    string   `json:"matchId"`
	GameMode   string   `json:"gameMode"`
	PlayerIDs  []string `json:"playerIds"`
	DurationMs int64    `json:"durationMs"`
	EndReason  string   `json:"endReason"`
	EndedAt    string   `json:"endedAt"`
}

// Store abstracts persistence for match outcomes.
type Store interface {
	RecordOutcome(ctx context.Context, o Outcome) error
	ListRecent(ctx context.Context, limit int) ([]Record, error)
	Close()
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS match_outcomes (
	id UUID PRIMARY KEY,
	match_id TEXT NOT NULL,
	game_mode TEXT NOT NULL,
	player_ids TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	end_reason TEXT NOT NULL,
	ended_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_outcomes_ended_at ON match_outcomes(ended_at DESC);
`

// PgStore persists match outcomes to Postgres via pgxpool.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and ensures the match_outcomes table
// exists. If databaseURL is empty, NewStore returns (nil, nil) and the
// caller runs with history disabled.
func NewStore(ctx context.Context, databaseURL string) (*PgStore, error) {
	if databaseURL == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to Postgres", "tag", "history")
	return &PgStore{pool: pool}, nil
}

// Close closes the connection pool. Safe to call on a nil *PgStore.
func (s *PgStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// RecordOutcome inserts one completed match's outcome row.
func (s *PgStore) RecordOutcome(ctx context.Context, o Outcome) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO match_outcomes (id, match_id, game_mode, player_ids, duration_ms, end_reason, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), o.MatchID, o.GameMode, strings.Join(o.PlayerIDs, ","), o.DurationMs(), o.EndReason, o.EndedAt)
	return err
}

// ListRecent returns the most recent outcomes, newest first.
func (s *PgStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.pool == nil {
		return []Record{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, match_id, game_mode, player_ids, duration_ms, end_reason, ended_at
		FROM match_outcomes
		ORDER BY ended_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var r Record
		var playerIDs string
		var endedAt time.Time
		if err := rows.Scan(&r.ID, &r.MatchID, &r.GameMode, &playerIDs, &r.DurationMs, &r.EndReason, &endedAt); err != nil {
			return nil, err
		}
		r.PlayerIDs = strings.Split(playerIDs, ",")
		r.EndedAt = endedAt.UTC().Format(time.RFC3339)
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Store = (*PgStore)(nil)
