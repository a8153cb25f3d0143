package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/metrics"
)

// timeOp times a store operation; call the result with the operation's error.
func timeOp(op string) func(error) {
	done := metrics.TimeOp(op)
	return func(err error) { done(err == nil) }
}

// NewExtractRun builds a Run recording a single-model extraction.
func NewExtractRun(text, language, domain string, a *analysis.ModelAnalysis) (*Run, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encoding analysis: %w", err)
	}
	return &Run{
		Kind:     RunExtract,
		Text:     text,
		Language: language,
		Domain:   domain,
		Models:   []string{a.ModelName},
		Payload:  payload,
	}, nil
}

// NewAnalyzeRun builds a Run recording a multi-model arbitration.
func NewAnalyzeRun(resp *analysis.MultiModelResponse) (*Run, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	score := resp.AgreementScore
	return &Run{
		Kind:     RunAnalyze,
		Text:     resp.Text,
		Language: resp.Language,
		Domain:   resp.Domain,
		Models: []string{
			resp.FirstAnalysis.ModelName,
			resp.SecondAnalysis.ModelName,
			resp.FinalAnalysis.ModelName,
		},
		AgreementScore: &score,
		Payload:        payload,
	}, nil
}

// Analysis decodes the payload of an extract run.
func (r *Run) Analysis() (*analysis.ModelAnalysis, error) {
	if r.Kind != RunExtract {
		return nil, fmt.Errorf("run %s is a %s run", r.ID, r.Kind)
	}
	var a analysis.ModelAnalysis
	if err := json.Unmarshal(r.Payload, &a); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", r.ID, err)
	}
	return &a, nil
}

// Response decodes the payload of an analyze run.
func (r *Run) Response() (*analysis.MultiModelResponse, error) {
	if r.Kind != RunAnalyze {
		return nil, fmt.Errorf("run %s is a %s run", r.ID, r.Kind)
	}
	var resp analysis.MultiModelResponse
	if err := json.Unmarshal(r.Payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", r.ID, err)
	}
	return &resp, nil
}

// SaveRun inserts r, assigning an ID and creation time when unset, and returns
// the ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, r *Run) (id string, err error) {
	done := timeOp("save_run")
	defer func() { done(err) }()

	if r.Kind != RunExtract && r.Kind != RunAnalyze {
		return "", fmt.Errorf("invalid run kind %q", r.Kind)
	}
	if len(r.Payload) == 0 {
		return "", fmt.Errorf("run has no payload")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	var score sql.NullFloat64
	if r.AgreementScore != nil {
		score = sql.NullFloat64{Float64: *r.AgreementScore, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, text, language, domain, models, agreement_score, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.Text, r.Language, r.Domain, strings.Join(r.Models, ","),
		score, string(r.Payload), r.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return r.ID, nil
}

// GetRun returns the run with id, or ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (r *Run, err error) {
	done := timeOp("get_run")
	defer func() { done(err) }()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, text, language, domain, models, agreement_score, payload, created_at
		 FROM runs WHERE id = ?`, id)
	r, err = scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, f RunFilter) (runs []*Run, err error) {
	done := timeOp("list_runs")
	defer func() { done(err) }()

	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `SELECT id, kind, text, language, domain, models, agreement_score, payload, created_at FROM runs`
	args := []any{}
	if f.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(f.Kind))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r       Run
		kind    string
		models  string
		score   sql.NullFloat64
		payload string
	)
	if err := sc.Scan(&r.ID, &kind, &r.Text, &r.Language, &r.Domain, &models, &score, &payload, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Kind = RunKind(kind)
	if models != "" {
		r.Models = strings.Split(models, ",")
	}
	if score.Valid {
		v := score.Float64
		r.AgreementScore = &v
	}
	r.Payload = []byte(payload)
	return &r, nil
}
