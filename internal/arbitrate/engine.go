// Package arbitrate reconciles two independent extraction passes over the same
// text through a third, adjudicating pass.
//
// Two models extract concurrently; the engine computes which entities and
// relationships they disagree on and how much they agree overall, then hands
// both analyses and the disagreements to a referee model whose output becomes
// the final analysis. The engine never merges results itself and never falls
// back to a partial answer.
package arbitrate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/extract"
	"github.com/hurttlocker/langextract/internal/metrics"
)

// Pass roles.
const (
	RoleFirst   = "first"
	RoleSecond  = "second"
	RoleReferee = "referee"
)

// Extractor runs a single extraction pass. *extract.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (*analysis.ModelAnalysis, error)
}

// Request names the text and the three models of one arbitration.
type Request struct {
	Text         string
	Language     string
	Domain       string
	ModelFirst   string
	ModelSecond  string
	ModelReferee string
}

// Engine runs arbitrations. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	extractor Extractor
}

// New creates an Engine over x.
func New(x Extractor) *Engine {
	return &Engine{extractor: x}
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return extract.ErrEmptyText
	}
	var missing []string
	if strings.TrimSpace(r.ModelFirst) == "" {
		missing = append(missing, "first")
	}
	if strings.TrimSpace(r.ModelSecond) == "" {
		missing = append(missing, "second")
	}
	if strings.TrimSpace(r.ModelReferee) == "" {
		missing = append(missing, "referee")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s model", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if strings.TrimSpace(r.ModelFirst) == strings.TrimSpace(r.ModelSecond) {
		return fmt.Errorf("%w: first and second passes need distinct models, both are %q", ErrInvalidRequest, r.ModelFirst)
	}
	return nil
}

// Arbitrate runs both independent passes concurrently, then the referee pass.
//
// If either independent pass fails the result is a *PartialArbitrationError and
// the referee is not called. A referee failure is a *RefereeError. In both cases
// no response is returned.
func (e *Engine) Arbitrate(ctx context.Context, req Request) (*analysis.MultiModelResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	lang := analysis.NormalizeLanguage(req.Language)
	domain := analysis.NormalizeDomain(req.Domain)
	base := extract.Request{Text: req.Text, Language: lang, Domain: domain}

	start := time.Now()

	// Results are slotted by role, never by completion order.
	var (
		wg      sync.WaitGroup
		results [2]*analysis.ModelAnalysis
		errs    [2]error
	)
	roles := [2]string{RoleFirst, RoleSecond}
	models := [2]string{req.ModelFirst, req.ModelSecond}
	for i := range roles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			passReq := base
			passReq.Model = models[i]
			results[i], errs[i] = e.pass(ctx, roles[i], passReq)
		}(i)
	}
	wg.Wait()

	var failures []PassFailure
	for i := range roles {
		if errs[i] != nil {
			failures = append(failures, PassFailure{Role: roles[i], Model: models[i], Err: errs[i]})
		}
	}
	if len(failures) > 0 {
		return nil, &PartialArbitrationError{Failures: failures}
	}
	first, second := results[0], results[1]

	conflictingEntities := EntityConflicts(first.Entities, second.Entities)
	conflictingRelationships := RelationshipConflicts(first.Relationships, second.Relationships)
	score := AgreementScore(first, second)
	metrics.Default().ObserveAgreement(domain, score)

	refReq := base
	refReq.Model = req.ModelReferee
	refReq.Referee = &extract.RefereeContext{
		First:                    *first,
		Second:                   *second,
		ConflictingEntities:      conflictingEntities,
		ConflictingRelationships: conflictingRelationships,
	}
	final, err := e.pass(ctx, RoleReferee, refReq)
	if err != nil {
		return nil, &RefereeError{Model: req.ModelReferee, Err: err}
	}

	slog.Info("arbitration complete",
		"domain", domain,
		"agreement", score,
		"entity_conflicts", len(conflictingEntities),
		"relationship_conflicts", len(conflictingRelationships),
		"elapsed", time.Since(start))

	return &analysis.MultiModelResponse{
		Text:                     req.Text,
		Language:                 lang,
		Domain:                   domain,
		FirstAnalysis:            *first,
		SecondAnalysis:           *second,
		FinalAnalysis:            *final,
		AgreementScore:           score,
		ConflictingEntities:      conflictingEntities,
		ConflictingRelationships: conflictingRelationships,
	}, nil
}

func (e *Engine) pass(ctx context.Context, role string, req extract.Request) (*analysis.ModelAnalysis, error) {
	done := metrics.TimePass(role, req.Model)
	out, err := e.extractor.Extract(ctx, req)
	if err == nil && out == nil {
		err = fmt.Errorf("%s pass returned no analysis", role)
	}
	done(err == nil)
	if err != nil {
		slog.Warn("extraction pass failed", "role", role, "model", req.Model, "err", err)
		return nil, err
	}
	return out, nil
}
