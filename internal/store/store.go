// Package store provides data access for saved sessions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agent-console/backend/internal/model"
)

// SessionStore persists session conversations so closed tabs can be
// reopened later. Sessions are keyed by path; the id column carries the
// runtime session identifier used to exclude open tabs from listings.
type SessionStore struct {
	db *sql.DB
}

// New creates a SessionStore.
func New(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// List returns metadata for every saved session, most recently modified
// first.
func (s *SessionStore) List(ctx context.Context) ([]model.SavedSession, error) {
	query := `
		SELECT path, id, name, cwd, message_count, first_message, created_at, modified_at
		FROM saved_sessions
		ORDER BY modified_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved sessions: %w", err)
	}
	defer rows.Close()

	var out []model.SavedSession
	for rows.Next() {
		var sess model.SavedSession
		var cwd, firstMessage sql.NullString
		if err := rows.Scan(
			&sess.Path,
			&sess.ID,
			&sess.Name,
			&cwd,
			&sess.MessageCount,
			&firstMessage,
			&sess.Created,
			&sess.Modified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan saved session: %w", err)
		}
		sess.Cwd = cwd.String
		sess.FirstMessage = firstMessage.String
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list saved sessions: %w", err)
	}

	return out, nil
}

// Get loads a saved session with its full message log.
func (s *SessionStore) Get(ctx context.Context, path string) (*model.SessionRecord, error) {
	query := `
		SELECT path, id, name, cwd, message_count, first_message, messages, created_at, modified_at
		FROM saved_sessions
		WHERE path = ?
	`

	rec := &model.SessionRecord{}
	var cwd, firstMessage sql.NullString
	var messagesJSON string

	err := s.db.QueryRowContext(ctx, query, path).Scan(
		&rec.Path,
		&rec.ID,
		&rec.Name,
		&cwd,
		&rec.MessageCount,
		&firstMessage,
		&messagesJSON,
		&rec.Created,
		&rec.Modified,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saved session: %w", err)
	}

	rec.Cwd = cwd.String
	rec.FirstMessage = firstMessage.String
	if err := json.Unmarshal([]byte(messagesJSON), &rec.Messages); err != nil {
		return nil, fmt.Errorf("failed to parse message log: %w", err)
	}

	return rec, nil
}

// Save upserts a session record by path. A re-save of an existing path
// keeps the original creation time and bumps the modification time.
func (s *SessionStore) Save(ctx context.Context, rec *model.SessionRecord) error {
	messagesJSON, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to serialize message log: %w", err)
	}

	created := rec.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	modified := rec.Modified
	if modified.IsZero() {
		modified = created
	}

	query := `
		INSERT INTO saved_sessions (path, id, name, cwd, message_count, first_message, messages, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			cwd = excluded.cwd,
			message_count = excluded.message_count,
			first_message = excluded.first_message,
			messages = excluded.messages,
			modified_at = excluded.modified_at
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.Path,
		rec.ID,
		rec.Name,
		rec.Cwd,
		rec.MessageCount,
		rec.FirstMessage,
		string(messagesJSON),
		created,
		modified,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Delete removes a saved session. Deleting a path that does not exist
// returns ErrSessionNotFound.
func (s *SessionStore) Delete(ctx context.Context, path string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM saved_sessions WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("failed to delete saved session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete saved session: %w", err)
	}
	if affected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}
