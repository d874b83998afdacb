package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tern-lang/tern/internal/profile"
)

// ErrNotFound is returned when no snapshot exists for a session id.
var ErrNotFound = errors.New("snapshot not found")

// SessionInfo describes one stored snapshot for listing.
type SessionInfo struct {
	SessionID string
	Version   int
	CreatedAt time.Time
}

// SaveSnapshot stores a profile export, replacing any earlier snapshot
// saved under the same session id.
func (s *Store) SaveSnapshot(ctx context.Context, snap *profile.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, version, created_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			version = excluded.version,
			created_at = excluded.created_at,
			payload = excluded.payload
	`, snap.SessionID, snap.Version, snap.Timestamp.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the snapshot stored for the given session id,
// or ErrNotFound.
func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (*profile.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM snapshots WHERE session_id = ?", sessionID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	var snap profile.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot for session %q: %w", sessionID, err)
	}
	return &snap, nil
}

// ListSessions returns stored sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, version, created_at
		FROM snapshots
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var created string
		if err := rows.Scan(&info.SessionID, &info.Version, &created); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", created, err)
		}
		info.CreatedAt = t
		out = append(out, info)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots. keep <= 0 removes
// nothing.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return int(n), nil
}
