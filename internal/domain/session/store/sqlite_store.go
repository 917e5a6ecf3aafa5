// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements StateStore using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) the session database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

// Verify runs an integrity check; it is used by the readiness probe.
func (s *SqliteStore) Verify(ctx context.Context) error {
	issues, err := sqlite.QuickCheck(ctx, s.DB)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("session store corrupt: %v", issues)
	}
	return nil
}

func (s *SqliteStore) migrate() error {
	var current int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		reconnect_attempts INTEGER NOT NULL DEFAULT 0,
		last_error_code TEXT,
		last_error_message TEXT,
		last_error_at_ms INTEGER,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) PutSession(ctx context.Context, info model.SessionInfo) error {
	var code, msg sql.NullString
	var errAt sql.NullInt64
	if info.LastError != nil {
		code = sql.NullString{String: info.LastError.Code, Valid: true}
		msg = sql.NullString{String: info.LastError.Message, Valid: true}
		errAt = sql.NullInt64{Int64: info.LastError.At.UnixMilli(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO sessions (
		session_id, state, reconnect_attempts, last_error_code, last_error_message,
		last_error_at_ms, created_at_ms, updated_at_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		state = excluded.state,
		reconnect_attempts = excluded.reconnect_attempts,
		last_error_code = excluded.last_error_code,
		last_error_message = excluded.last_error_message,
		last_error_at_ms = excluded.last_error_at_ms,
		updated_at_ms = excluded.updated_at_ms
	`,
		info.SessionID, string(info.State), int64(info.ReconnectAttempts), code, msg,
		errAt, info.CreatedAt.UnixMilli(), info.UpdatedAt.UnixMilli(),
	)
	return err
}

const selectSession = `SELECT session_id, state, reconnect_attempts, last_error_code,
	last_error_message, last_error_at_ms, created_at_ms, updated_at_ms FROM sessions`

func (s *SqliteStore) GetSession(ctx context.Context, id string) (*model.SessionInfo, error) {
	row := s.DB.QueryRowContext(ctx, selectSession+" WHERE session_id = ?", id)
	info, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *SqliteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id)
	return err
}

func (s *SqliteStore) ListSessions(ctx context.Context) ([]model.SessionInfo, error) {
	rows, err := s.DB.QueryContext(ctx, selectSession+" ORDER BY session_id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.SessionInfo
	for rows.Next() {
		info, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (model.SessionInfo, error) {
	var (
		info               model.SessionInfo
		state              string
		attempts           int64
		code, msg          sql.NullString
		errAt              sql.NullInt64
		createdMs, updated int64
	)
	if err := scanner.Scan(&info.SessionID, &state, &attempts, &code, &msg, &errAt, &createdMs, &updated); err != nil {
		return model.SessionInfo{}, err
	}
	info.State = model.SessionState(state)
	if attempts > 0 {
		info.ReconnectAttempts = uint(attempts)
	}
	if code.Valid {
		info.LastError = &model.ErrorInfo{Code: code.String, Message: msg.String}
		if errAt.Valid {
			info.LastError.At = time.UnixMilli(errAt.Int64).UTC()
		}
	}
	info.CreatedAt = time.UnixMilli(createdMs).UTC()
	info.UpdatedAt = time.UnixMilli(updated).UTC()
	return info, nil
}
