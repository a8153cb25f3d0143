package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hurttlocker/langextract/internal/analysis"
)

// CreateSession inserts s, assigning an ID and timestamps, and returns the ID.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session) (id string, err error) {
	done := timeOp("create_session")
	defer func() { done(err) }()

	prepareSession(sess)
	if err := insertSession(ctx, s.db, sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// StartSession creates sess together with its first user/assistant exchange
// in one transaction, so a session never exists without its opening turns.
func (s *SQLiteStore) StartSession(ctx context.Context, sess *Session, user, assistant string) (id string, err error) {
	done := timeOp("start_session")
	defer func() { done(err) }()

	prepareSession(sess)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertSession(ctx, tx, sess); err != nil {
		return "", err
	}
	if _, err := appendTurnsTx(ctx, tx, sess.ID, exchange(user, assistant)); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing session: %w", err)
	}
	return sess.ID, nil
}

func prepareSession(sess *Session) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	sess.UpdatedAt = sess.CreatedAt
	sess.Title = strings.TrimSpace(sess.Title)
	sess.Language = analysis.NormalizeLanguage(sess.Language)
	sess.Domain = analysis.NormalizeDomain(sess.Domain)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, db execer, sess *Session) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, title, language, domain, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.Language, sess.Domain, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func exchange(user, assistant string) []analysis.Turn {
	return []analysis.Turn{
		{Role: analysis.RoleUser, Content: user},
		{Role: analysis.RoleAssistant, Content: assistant},
	}
}

// GetSession returns the session with id, or ErrNotFound.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (sess *Session, err error) {
	done := timeOp("get_session")
	defer func() { done(err) }()

	sess = &Session{}
	err = s.db.QueryRowContext(ctx,
		`SELECT id, title, language, domain, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Title, &sess.Language, &sess.Domain, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns sessions most recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) (out []*Session, err error) {
	done := timeOp("list_sessions")
	defer func() { done(err) }()

	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, language, domain, created_at, updated_at FROM chat_sessions
		 ORDER BY updated_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Language, &sess.Domain, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// AppendTurn adds a turn at the end of a session. Sequence numbers are
// assigned inside a transaction so concurrent appends stay dense.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, role analysis.Role, content string) (t *Turn, err error) {
	done := timeOp("append_turn")
	defer func() { done(err) }()

	turns, err := s.appendTurns(ctx, sessionID, []analysis.Turn{{Role: role, Content: content}})
	if err != nil {
		return nil, err
	}
	return turns[0], nil
}

// AppendExchange adds a user turn and the assistant's reply as consecutive
// turns in one transaction. Either both are stored or neither is.
func (s *SQLiteStore) AppendExchange(ctx context.Context, sessionID, user, assistant string) (turns []*Turn, err error) {
	done := timeOp("append_exchange")
	defer func() { done(err) }()

	return s.appendTurns(ctx, sessionID, exchange(user, assistant))
}

func (s *SQLiteStore) appendTurns(ctx context.Context, sessionID string, turns []analysis.Turn) ([]*Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	out, err := appendTurnsTx(ctx, tx, sessionID, turns)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing turn: %w", err)
	}
	return out, nil
}

func appendTurnsTx(ctx context.Context, tx *sql.Tx, sessionID string, turns []analysis.Turn) ([]*Turn, error) {
	for _, t := range turns {
		if !t.Role.Valid() {
			return nil, fmt.Errorf("invalid turn role %q", t.Role)
		}
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking session: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_turns WHERE session_id = ?`, sessionID,
	).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next turn sequence: %w", err)
	}

	now := time.Now().UTC()
	out := make([]*Turn, 0, len(turns))
	for i, t := range turns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_turns (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			sessionID, seq+i, string(t.Role), t.Content, now,
		); err != nil {
			return nil, fmt.Errorf("inserting %s turn: %w", t.Role, err)
		}
		out = append(out, &Turn{SessionID: sessionID, Seq: seq + i, Role: t.Role, Content: t.Content, CreatedAt: now})
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, sessionID,
	); err != nil {
		return nil, fmt.Errorf("touching session: %w", err)
	}
	return out, nil
}

// Turns returns a session's turns, oldest first.
func (s *SQLiteStore) Turns(ctx context.Context, sessionID string) (turns []analysis.Turn, err error) {
	done := timeOp("turns")
	defer func() { done(err) }()

	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM chat_turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	defer rows.Close()

	turns = []analysis.Turn{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, analysis.Turn{Role: analysis.Role(role), Content: content})
	}
	return turns, rows.Err()
}
