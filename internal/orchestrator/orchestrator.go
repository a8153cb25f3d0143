// Package orchestrator composes extraction, arbitration and context selection
// for the two call sites of the application: one-shot analysis of a text, and
// each turn of an ongoing chat.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/arbitrate"
	"github.com/hurttlocker/langextract/internal/chatctx"
	"github.com/hurttlocker/langextract/internal/extract"
	"github.com/hurttlocker/langextract/internal/llm"
	"github.com/hurttlocker/langextract/internal/speech"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyReply is returned when the chat model answers with nothing.
var ErrEmptyReply = errors.New("chat model returned an empty reply")

// AnalysisMode selects what structured analysis accompanies a chat reply.
type AnalysisMode string

const (
	ModeNone   AnalysisMode = "none"
	ModeSingle AnalysisMode = "single"
	ModeMulti  AnalysisMode = "multi"
)

// ParseAnalysisMode maps s to a mode. Empty means ModeNone.
func ParseAnalysisMode(s string) (AnalysisMode, error) {
	switch m := AnalysisMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeNone, nil
	case ModeNone, ModeSingle, ModeMulti:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown analysis mode %q (want none, single or multi)", arbitrate.ErrInvalidRequest, s)
	}
}

// Arbiter runs a three-pass arbitration. *arbitrate.Engine satisfies it.
type Arbiter interface {
	Arbitrate(ctx context.Context, req arbitrate.Request) (*analysis.MultiModelResponse, error)
}

// Transcriber turns audio into text. *speech.Client satisfies it.
type Transcriber interface {
	TranscribeForChat(ctx context.Context, audio io.Reader, filename, language string) (*speech.Result, error)
}

// Components are the collaborators an Orchestrator drives. Transcriber may be
// nil when speech input is not configured.
type Components struct {
	Invoker     extract.Invoker
	Extractor   arbitrate.Extractor
	Arbiter     Arbiter
	Transcriber Transcriber
}

// Defaults fill in whatever a request leaves empty.
type Defaults struct {
	Language        string
	Domain          string
	ExtractModel    string
	FirstModel      string
	SecondModel     string
	RefereeModel    string
	ChatModel       string
	ContextCap      int
	ChatTemperature float64
	ChatMaxTokens   int
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	c Components
	d Defaults
}

// New creates an Orchestrator.
func New(c Components, d Defaults) *Orchestrator {
	if d.Language == "" {
		d.Language = analysis.DefaultLanguage
	}
	if d.Domain == "" {
		d.Domain = analysis.DomainGeneral
	}
	if d.ContextCap <= 0 {
		d.ContextCap = chatctx.DefaultCap
	}
	return &Orchestrator{c: c, d: d}
}

// Defaults returns the effective defaults.
func (o *Orchestrator) Defaults() Defaults { return o.d }

// AnalyzeRequest is a one-shot multi-model analysis. Empty fields take defaults.
type AnalyzeRequest struct {
	Text         string
	Language     string
	Domain       string
	ModelFirst   string
	ModelSecond  string
	ModelReferee string
}

// Analyze arbitrates req.Text across three models.
func (o *Orchestrator) Analyze(ctx context.Context, req AnalyzeRequest) (*analysis.MultiModelResponse, error) {
	return o.c.Arbiter.Arbitrate(ctx, arbitrate.Request{
		Text:         req.Text,
		Language:     orDefault(req.Language, o.d.Language),
		Domain:       orDefault(req.Domain, o.d.Domain),
		ModelFirst:   orDefault(req.ModelFirst, o.d.FirstModel),
		ModelSecond:  orDefault(req.ModelSecond, o.d.SecondModel),
		ModelReferee: orDefault(req.ModelReferee, o.d.RefereeModel),
	})
}

// ExtractRequest is a one-shot single-model extraction.
type ExtractRequest struct {
	Text     string
	Language string
	Domain   string
	Schema   string
	Model    string
	Examples []extract.Example
}

// Extract runs one extraction pass over req.Text.
func (o *Orchestrator) Extract(ctx context.Context, req ExtractRequest) (*analysis.ModelAnalysis, error) {
	return o.c.Extractor.Extract(ctx, extract.Request{
		Text:     req.Text,
		Language: analysis.NormalizeLanguage(orDefault(req.Language, o.d.Language)),
		Domain:   analysis.NormalizeDomain(orDefault(req.Domain, o.d.Domain)),
		Schema:   orDefault(req.Schema, analysis.DefaultSchema),
		Model:    orDefault(req.Model, o.d.ExtractModel),
		Examples: req.Examples,
	})
}

// ChatRequest is one chat turn. History holds the prior turns, oldest first,
// and is never modified.
type ChatRequest struct {
	Message      string
	History      []analysis.Turn
	Language     string
	Domain       string
	Model        string // chat model
	AnalysisMode AnalysisMode
	ExtractModel string // ModeSingle
	ModelFirst   string // ModeMulti
	ModelSecond  string
	ModelReferee string
	ContextCap   int // 0 = default
}

// ChatReply is the assistant's answer plus any requested analysis.
type ChatReply struct {
	Reply       string                       `json:"reply"`
	Model       string                       `json:"model"`
	Transcript  string                       `json:"transcript,omitempty"`
	Analysis    *analysis.ModelAnalysis      `json:"analysis,omitempty"`
	Arbitration *analysis.MultiModelResponse `json:"arbitration,omitempty"`
}

// Chat answers req.Message in the context of a bounded selection of
// req.History. With ModeSingle or ModeMulti the message is also analyzed,
// concurrently with the reply; a failure in either fails the turn.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, extract.ErrEmptyText
	}
	mode, err := ParseAnalysisMode(string(req.AnalysisMode))
	if err != nil {
		return nil, err
	}
	model := orDefault(req.Model, o.d.ChatModel)
	if model == "" {
		return nil, fmt.Errorf("%w: no chat model configured", llm.ErrModelUnavailable)
	}
	lang := analysis.NormalizeLanguage(orDefault(req.Language, o.d.Language))
	domain := analysis.NormalizeDomain(orDefault(req.Domain, o.d.Domain))
	limit := req.ContextCap
	if limit <= 0 {
		limit = o.d.ContextCap
	}

	selected := chatctx.Select(req.History, limit)
	history := make([]llm.Message, 0, len(selected))
	for _, t := range selected {
		if !t.Role.Valid() {
			continue
		}
		history = append(history, llm.Message{Role: string(t.Role), Content: t.Content})
	}

	start := time.Now()
	out := &ChatReply{Model: model}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reply, err := o.c.Invoker.Invoke(gctx, model, req.Message, llm.CompletionOpts{
			System:      ChatSystemPrompt(lang, domain),
			History:     history,
			Temperature: o.d.ChatTemperature,
			MaxTokens:   o.d.ChatMaxTokens,
		})
		if err != nil {
			return fmt.Errorf("chat reply: %w", err)
		}
		reply = strings.TrimSpace(reply)
		if reply == "" {
			return ErrEmptyReply
		}
		out.Reply = reply
		return nil
	})
	switch mode {
	case ModeSingle:
		g.Go(func() error {
			a, err := o.Extract(gctx, ExtractRequest{Text: req.Message, Language: lang, Domain: domain, Model: req.ExtractModel})
			if err != nil {
				return fmt.Errorf("chat analysis: %w", err)
			}
			out.Analysis = a
			return nil
		})
	case ModeMulti:
		g.Go(func() error {
			r, err := o.Analyze(gctx, AnalyzeRequest{
				Text:         req.Message,
				Language:     lang,
				Domain:       domain,
				ModelFirst:   req.ModelFirst,
				ModelSecond:  req.ModelSecond,
				ModelReferee: req.ModelReferee,
			})
			if err != nil {
				return fmt.Errorf("chat analysis: %w", err)
			}
			out.Arbitration = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("chat turn",
		"model", model,
		"mode", string(mode),
		"history", len(req.History),
		"context", len(history),
		"elapsed", time.Since(start))
	return out, nil
}

// TranscribeAndChat transcribes audio and feeds the text through Chat as the
// new message. req.Message is ignored.
func (o *Orchestrator) TranscribeAndChat(ctx context.Context, audio io.Reader, filename string, req ChatRequest) (*ChatReply, error) {
	if o.c.Transcriber == nil {
		return nil, errors.New("speech transcription is not configured")
	}
	lang := analysis.NormalizeLanguage(orDefault(req.Language, o.d.Language))
	res, err := o.c.Transcriber.TranscribeForChat(ctx, audio, filename, lang)
	if err != nil {
		return nil, fmt.Errorf("transcribing: %w", err)
	}
	req.Message = res.Text
	req.Language = lang
	reply, err := o.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	reply.Transcript = res.Text
	return reply, nil
}

func orDefault(v, fallback string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return fallback
}
