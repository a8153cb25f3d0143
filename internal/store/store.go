// Package store persists extraction runs and chat transcripts in SQLite.
//
// The store belongs to the callers (CLI, HTTP API, MCP server). Extraction and
// arbitration never touch it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hurttlocker/langextract/internal/analysis"
	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.langextract/langextract.db"

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 50

// ErrNotFound is returned when a run or session does not exist.
var ErrNotFound = errors.New("not found")

// RunKind says which operation produced a run.
type RunKind string

const (
	RunExtract RunKind = "extract"
	RunAnalyze RunKind = "analyze"
)

// Run is one stored extraction or analysis. Payload holds the JSON of the
// *analysis.ModelAnalysis (extract) or *analysis.MultiModelResponse (analyze).
type Run struct {
	ID             string
	Kind           RunKind
	Text           string
	Language       string
	Domain         string
	Models         []string
	AgreementScore *float64
	Payload        []byte
	CreatedAt      time.Time
}

// RunFilter controls ListRuns.
type RunFilter struct {
	Kind   RunKind // empty = all kinds
	Limit  int
	Offset int
}

// Session is a persisted chat conversation.
type Session struct {
	ID        string
	Title     string
	Language  string
	Domain    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one stored message of a session. Seq is 1-based and dense.
type Turn struct {
	SessionID string
	Seq       int
	Role      analysis.Role
	Content   string
	CreatedAt time.Time
}

// StoreStats holds counts for observability.
type StoreStats struct {
	RunCount        int64
	ExtractRunCount int64
	AnalyzeRunCount int64
	SessionCount    int64
	TurnCount       int64
	DBSizeBytes     int64
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the storage interface.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, r *Run) (string, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, f RunFilter) ([]*Run, error)

	// Chat
	CreateSession(ctx context.Context, s *Session) (string, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	StartSession(ctx context.Context, s *Session, user, assistant string) (string, error)
	AppendTurn(ctx context.Context, sessionID string, role analysis.Role, content string) (*Turn, error)
	AppendExchange(ctx context.Context, sessionID, user, assistant string) ([]*Turn, error)
	Turns(ctx context.Context, sessionID string) ([]analysis.Turn, error)

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats returns row counts and the database size.
func (s *SQLiteStore) Stats(ctx context.Context) (stats *StoreStats, err error) {
	done := timeOp("stats")
	defer func() { done(err) }()

	stats = &StoreStats{}
	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM runs", &stats.RunCount},
		{"SELECT COUNT(*) FROM runs WHERE kind = 'extract'", &stats.ExtractRunCount},
		{"SELECT COUNT(*) FROM runs WHERE kind = 'analyze'", &stats.AnalyzeRunCount},
		{"SELECT COUNT(*) FROM chat_sessions", &stats.SessionCount},
		{"SELECT COUNT(*) FROM chat_turns", &stats.TurnCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	// Only meaningful for file-based databases.
	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}
	return stats, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
