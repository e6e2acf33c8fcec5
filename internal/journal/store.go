package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reagent-systems/Simple-Agent-Discord-Bot/internal/idgen"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Entry is one logged session event.
type Entry struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"session_key"`
	UserID     string    `json:"user_id,omitempty"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Append records one event. Rows are never updated or deleted.
func (s *Store) Append(ctx context.Context, sessionKey, userID, kind, detail string) (Entry, error) {
	id := idgen.New()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO session_log (id, session_key, user_id, kind, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, sessionKey, userID, kind, detail, now.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("insert session log: %w", err)
	}
	return Entry{ID: id, SessionKey: sessionKey, UserID: userID, Kind: kind, Detail: detail, CreatedAt: now}, nil
}

// Recent returns the newest entries for a session, newest first.
func (s *Store) Recent(ctx context.Context, sessionKey string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_key, user_id, kind, detail, created_at FROM session_log WHERE session_key = ? ORDER BY created_at DESC LIMIT ?`,
		sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list session log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var userID, detail sql.NullString
		var createdAtStr string
		if err := rows.Scan(&e.ID, &e.SessionKey, &userID, &e.Kind, &detail, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan session log: %w", err)
		}
		e.UserID = userID.String
		e.Detail = detail.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session log: %w", err)
	}
	return out, nil
}
