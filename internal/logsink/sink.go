// Package logsink receives bot output chunks from the supervisor, persists
// them, and fans them out to live subscribers. It is append-only from the
// supervisor's point of view.
package logsink

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one chunk of bot output, tagged with its origin.
type Entry struct {
	BotID   string    `json:"bot_id"`
	BotName string    `json:"bot_name"`
	Stream  string    `json:"stream"` // "stdout" or "stderr"
	Chunk   string    `json:"chunk"`
	At      time.Time `json:"at"`
}

// Sink consumes output chunks.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Store persists entries in sqlite and publishes them on an in-memory hub for
// live tailing.
type Store struct {
	db  *sql.DB
	hub *Hub
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		hub: NewHub(256),
	}
}

var _ Sink = (*Store)(nil)

func (s *Store) Write(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO bot_logs(bot_id, bot_name, stream, chunk, at)
VALUES(?, ?, ?, ?, ?);
`, e.BotID, e.BotName, e.Stream, e.Chunk, e.At.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append bot log: %w", err)
	}
	s.hub.Publish(e)
	return nil
}

// Tail returns up to limit recent entries for botID, oldest first.
func (s *Store) Tail(ctx context.Context, botID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT bot_id, bot_name, stream, chunk, at
FROM (
  SELECT id, bot_id, bot_name, stream, chunk, at
  FROM bot_logs WHERE bot_id = ?
  ORDER BY id DESC LIMIT ?
)
ORDER BY id ASC;
`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("tail bot logs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e   Entry
			atS string
		)
		if err := rows.Scan(&e.BotID, &e.BotName, &e.Stream, &e.Chunk, &atS); err != nil {
			return nil, fmt.Errorf("scan bot log: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, atS); err == nil {
			e.At = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tail bot logs: %w", err)
	}
	return out, nil
}

// Subscribe returns a live feed of entries and a cancel function.
func (s *Store) Subscribe() (<-chan Entry, func()) {
	return s.hub.Subscribe()
}
