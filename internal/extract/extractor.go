// Package extract runs a single extraction pass: one model, one text, one
// ModelAnalysis. Long inputs are chunked and merged; referee passes carry the
// two prior analyses and their conflicts in the prompt.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/llm"
)

// ErrEmptyText is returned when the input text is empty after trimming.
var ErrEmptyText = errors.New("text is empty")

// Invoker sends one prompt to the model named by model and returns its raw text.
// *llm.Router satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, model, prompt string, opts llm.CompletionOpts) (string, error)
}

// Defaults for Options.
const (
	DefaultMaxOutputTokens = 1024
	DefaultTimeout         = 120 * time.Second
)

// Options tune every call an Extractor makes.
type Options struct {
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration // per model call; 0 = DefaultTimeout, <0 = none
	Chunker         Chunker
}

// RefereeContext is what an adjudicating pass sees besides the text.
type RefereeContext struct {
	First                    analysis.ModelAnalysis
	Second                   analysis.ModelAnalysis
	ConflictingEntities      []string
	ConflictingRelationships []string
}

// Request is one extraction pass.
type Request struct {
	Text     string
	Language string
	Domain   string
	Schema   string
	Model    string
	Examples []Example       // nil = defaults for language and domain
	Referee  *RefereeContext // non-nil switches to the referee prompt
}

// Extractor performs single extraction passes. It holds no per-call state and
// is safe for concurrent use.
type Extractor struct {
	invoker Invoker
	opts    Options
}

// New creates an Extractor.
func New(invoker Invoker, opts Options) *Extractor {
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Extractor{invoker: invoker, opts: opts}
}

// Extract runs one pass over req.Text with req.Model.
func (x *Extractor) Extract(ctx context.Context, req Request) (*analysis.ModelAnalysis, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("%w: no model specified", llm.ErrModelUnavailable)
	}
	lang := analysis.NormalizeLanguage(req.Language)
	domain := analysis.NormalizeDomain(req.Domain)
	schema := req.Schema
	if schema == "" {
		schema = analysis.DefaultSchema
	}
	system := SystemPrompt(lang, schema, domain)

	if req.Referee != nil {
		prompt := RefereePrompt(req.Text, lang, domain, req.Referee)
		return x.call(ctx, req.Model, system, prompt)
	}

	chunks := x.opts.Chunker.Split(req.Text)
	if len(chunks) == 1 {
		return x.call(ctx, req.Model, system, UserPrompt(chunks[0], lang, domain, req.Examples))
	}

	slog.Debug("extracting in chunks", "model", req.Model, "chunks", len(chunks))
	parts := make([]*analysis.ModelAnalysis, 0, len(chunks))
	for i, chunk := range chunks {
		part, err := x.call(ctx, req.Model, system, UserPrompt(chunk, lang, domain, req.Examples))
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		parts = append(parts, part)
	}
	return mergeChunks(req.Model, parts), nil
}

func (x *Extractor) call(ctx context.Context, model, system, prompt string) (*analysis.ModelAnalysis, error) {
	if x.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.opts.Timeout)
		defer cancel()
	}

	raw, err := x.invoker.Invoke(ctx, model, prompt, llm.CompletionOpts{
		MaxTokens:   x.opts.MaxOutputTokens,
		Temperature: x.opts.Temperature,
		Format:      "json",
		System:      system,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("extraction with %s: %w (%v)", model, ctxErr, err)
		}
		return nil, fmt.Errorf("extraction with %s: %w", model, err)
	}
	// A reply that raced a cancellation is discarded.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("extraction with %s: %w", model, ctxErr)
	}

	out, err := ParseAnalysis(raw, model)
	if err != nil {
		return nil, fmt.Errorf("extraction with %s: %w", model, err)
	}
	return out, nil
}

// mergeChunks concatenates per-chunk results, keeping the first occurrence of
// each entity and relationship key.
func mergeChunks(model string, parts []*analysis.ModelAnalysis) *analysis.ModelAnalysis {
	out := &analysis.ModelAnalysis{
		ModelName:     model,
		Entities:      []analysis.Entity{},
		Relationships: []analysis.Relationship{},
	}
	seenE := make(map[analysis.EntityKey]bool)
	seenR := make(map[analysis.RelationshipKey]bool)
	var scoreSum float64
	var scored int
	var reasons []string

	for _, p := range parts {
		for _, e := range p.Entities {
			if k := e.Key(); !seenE[k] {
				seenE[k] = true
				out.Entities = append(out.Entities, e)
			}
		}
		for _, r := range p.Relationships {
			if k := r.Key(); !seenR[k] {
				seenR[k] = true
				out.Relationships = append(out.Relationships, r)
			}
		}
		if p.ConfidenceScore != nil {
			scoreSum += *p.ConfidenceScore
			scored++
		}
		if p.Reasoning != "" {
			reasons = append(reasons, p.Reasoning)
		}
	}
	if scored > 0 {
		avg := scoreSum / float64(scored)
		out.ConfidenceScore = &avg
	}
	out.Reasoning = strings.Join(reasons, "\n")
	return out
}
