// Package postgres persists final transcripts to a PostgreSQL utterances
// table, giving the transcripts a durable home beyond the life of the
// websocket that produced them. Persistence is optional; the server runs
// without it when no DSN is configured.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlUtterances = `
CREATE TABLE IF NOT EXISTS utterances (
    id         BIGSERIAL    PRIMARY KEY,
    session_id TEXT         NOT NULL,
    text       TEXT         NOT NULL,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_utterances_session_id
    ON utterances (session_id);

CREATE INDEX IF NOT EXISTS idx_utterances_created_at
    ON utterances (created_at);
`

// Utterance is one persisted final transcript.
type Utterance struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sink writes final transcripts to PostgreSQL. All methods are safe for
// concurrent use.
type Sink struct {
	pool *pgxpool.Pool
}

// NewSink connects to the database at dsn, verifies the connection, and
// creates the utterances table if it does not exist.
func NewSink(ctx context.Context, dsn string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript sink: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript sink: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlUtterances); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript sink: migrate: %w", err)
	}
	return &Sink{pool: pool}, nil
}

// Write appends one final transcript for sessionID.
func (s *Sink) Write(ctx context.Context, sessionID, text string, confidence float64) error {
	const q = `
		INSERT INTO utterances (session_id, text, confidence)
		VALUES ($1, $2, $3)`

	if _, err := s.pool.Exec(ctx, q, sessionID, text, confidence); err != nil {
		return fmt.Errorf("transcript sink: write: %w", err)
	}
	return nil
}

// Recent returns up to limit utterances for sessionID, newest first. A limit
// of 0 defaults to 50.
func (s *Sink) Recent(ctx context.Context, sessionID string, limit int) ([]Utterance, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT session_id, text, confidence, created_at
		FROM   utterances
		WHERE  session_id = $1
		ORDER  BY created_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("transcript sink: recent: %w", err)
	}
	defer rows.Close()

	var out []Utterance
	for rows.Next() {
		var u Utterance
		if err := rows.Scan(&u.SessionID, &u.Text, &u.Confidence, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("transcript sink: scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript sink: rows: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}
