package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/arbitrate"
	"github.com/hurttlocker/langextract/internal/chatctx"
	"github.com/hurttlocker/langextract/internal/extract"
	"github.com/hurttlocker/langextract/internal/llm"
	"github.com/hurttlocker/langextract/internal/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockInvoker struct {
	mu     sync.Mutex
	model  string
	prompt string
	opts   llm.CompletionOpts
	reply  string
	err    error
}

func (m *mockInvoker) Invoke(ctx context.Context, model, prompt string, opts llm.CompletionOpts) (string, error) {
	m.mu.Lock()
	m.model, m.prompt, m.opts = model, prompt, opts
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type mockExtractor struct {
	mu   sync.Mutex
	reqs []extract.Request
	err  error
}

func (m *mockExtractor) Extract(ctx context.Context, req extract.Request) (*analysis.ModelAnalysis, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &analysis.ModelAnalysis{
		ModelName: req.Model,
		Entities:  []analysis.Entity{{Name: "Ali", Type: "PERSON"}},
	}, nil
}

type mockArbiter struct {
	mu   sync.Mutex
	reqs []arbitrate.Request
	err  error
}

func (m *mockArbiter) Arbitrate(ctx context.Context, req arbitrate.Request) (*analysis.MultiModelResponse, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &analysis.MultiModelResponse{Text: req.Text, Language: req.Language, Domain: req.Domain, AgreementScore: 1}, nil
}

type mockTranscriber struct {
	text     string
	err      error
	language string
}

func (m *mockTranscriber) TranscribeForChat(ctx context.Context, audio io.Reader, filename, language string) (*speech.Result, error) {
	m.language = language
	if m.err != nil {
		return nil, m.err
	}
	return &speech.Result{Text: m.text, Language: language}, nil
}

func testDefaults() Defaults {
	return Defaults{
		ExtractModel: "ollama/extract",
		FirstModel:   "ollama/a",
		SecondModel:  "ollama/b",
		RefereeModel: "ollama/ref",
		ChatModel:    "ollama/chat",
	}
}

func newTest(inv *mockInvoker, x *mockExtractor, a *mockArbiter) *Orchestrator {
	return New(Components{Invoker: inv, Extractor: x, Arbiter: a}, testDefaults())
}

func TestNewDefaults(t *testing.T) {
	o := New(Components{}, Defaults{})
	d := o.Defaults()
	assert.Equal(t, "fa", d.Language)
	assert.Equal(t, analysis.DomainGeneral, d.Domain)
	assert.Equal(t, chatctx.DefaultCap, d.ContextCap)
}

func TestAnalyzeFillsDefaults(t *testing.T) {
	arb := &mockArbiter{}
	o := newTest(&mockInvoker{}, &mockExtractor{}, arb)

	resp, err := o.Analyze(context.Background(), AnalyzeRequest{Text: "Ali visited the shop.", ModelSecond: "ollama/override"})
	require.NoError(t, err)
	assert.Equal(t, "Ali visited the shop.", resp.Text)

	require.Len(t, arb.reqs, 1)
	got := arb.reqs[0]
	assert.Equal(t, "fa", got.Language)
	assert.Equal(t, analysis.DomainGeneral, got.Domain)
	assert.Equal(t, "ollama/a", got.ModelFirst)
	assert.Equal(t, "ollama/override", got.ModelSecond)
	assert.Equal(t, "ollama/ref", got.ModelReferee)
}

func TestAnalyzePropagatesErrors(t *testing.T) {
	want := &arbitrate.PartialArbitrationError{Failures: []arbitrate.PassFailure{{Role: "first", Model: "ollama/a", Err: extract.ErrMalformedExtraction}}}
	o := newTest(&mockInvoker{}, &mockExtractor{}, &mockArbiter{err: want})
	_, err := o.Analyze(context.Background(), AnalyzeRequest{Text: "x"})
	assert.ErrorIs(t, err, arbitrate.ErrPartialArbitration)
	assert.ErrorIs(t, err, extract.ErrMalformedExtraction)
}

func TestExtractNormalizes(t *testing.T) {
	x := &mockExtractor{}
	o := newTest(&mockInvoker{}, x, &mockArbiter{})

	got, err := o.Extract(context.Background(), ExtractRequest{Text: "hello", Language: "EN", Domain: "Police"})
	require.NoError(t, err)
	assert.Equal(t, "ollama/extract", got.ModelName)
	require.Len(t, x.reqs, 1)
	assert.Equal(t, "en", x.reqs[0].Language)
	assert.Equal(t, analysis.DomainPolice, x.reqs[0].Domain)
	assert.Equal(t, analysis.DefaultSchema, x.reqs[0].Schema)
}

func TestParseAnalysisMode(t *testing.T) {
	tests := []struct {
		in      string
		want    AnalysisMode
		wantErr bool
	}{
		{"", ModeNone, false},
		{"none", ModeNone, false},
		{" Single ", ModeSingle, false},
		{"MULTI", ModeMulti, false},
		{"triple", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAnalysisMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, arbitrate.ErrInvalidRequest, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestChatReplyOnly(t *testing.T) {
	inv := &mockInvoker{reply: "  Hello Ali.  "}
	x, arb := &mockExtractor{}, &mockArbiter{}
	o := newTest(inv, x, arb)

	history := []analysis.Turn{
		{Role: analysis.RoleUser, Content: "My name is Ali."},
		{Role: analysis.RoleAssistant, Content: "Nice to meet you."},
	}
	reply, err := o.Chat(context.Background(), ChatRequest{Message: "Who am I?", History: history, Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ali.", reply.Reply)
	assert.Equal(t, "ollama/chat", reply.Model)
	assert.Nil(t, reply.Analysis)
	assert.Nil(t, reply.Arbitration)

	assert.Equal(t, "ollama/chat", inv.model)
	assert.Equal(t, "Who am I?", inv.prompt)
	assert.Equal(t, []llm.Message{
		{Role: "user", Content: "My name is Ali."},
		{Role: "assistant", Content: "Nice to meet you."},
	}, inv.opts.History)
	assert.Contains(t, inv.opts.System, "text-analysis assistant")
	assert.Empty(t, inv.opts.Format)
	assert.Empty(t, x.reqs)
	assert.Empty(t, arb.reqs)
}

func TestChatBoundsContext(t *testing.T) {
	inv := &mockInvoker{reply: "ok"}
	o := newTest(inv, &mockExtractor{}, &mockArbiter{})

	history := make([]analysis.Turn, 40)
	for i := range history {
		history[i] = analysis.Turn{Role: analysis.RoleUser, Content: fmt.Sprintf("what about item %d?", i)}
	}
	before := append([]analysis.Turn(nil), history...)

	_, err := o.Chat(context.Background(), ChatRequest{Message: "next", History: history})
	require.NoError(t, err)
	assert.Len(t, inv.opts.History, chatctx.DefaultCap)
	assert.Equal(t, before, history, "history must not be modified")

	_, err = o.Chat(context.Background(), ChatRequest{Message: "next", History: history, ContextCap: 4})
	require.NoError(t, err)
	assert.Len(t, inv.opts.History, 4)
}

func TestChatSkipsUnknownRoles(t *testing.T) {
	inv := &mockInvoker{reply: "ok"}
	o := newTest(inv, &mockExtractor{}, &mockArbiter{})
	history := []analysis.Turn{{Role: "system", Content: "ignore"}, {Role: analysis.RoleUser, Content: "hi"}}
	_, err := o.Chat(context.Background(), ChatRequest{Message: "next", History: history})
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{{Role: "user", Content: "hi"}}, inv.opts.History)
}

func TestChatSingleAnalysis(t *testing.T) {
	x := &mockExtractor{}
	o := newTest(&mockInvoker{reply: "done"}, x, &mockArbiter{})

	reply, err := o.Chat(context.Background(), ChatRequest{
		Message:      "Ali went to the shop.",
		Domain:       "police",
		AnalysisMode: ModeSingle,
		ExtractModel: "ollama/x",
	})
	require.NoError(t, err)
	require.NotNil(t, reply.Analysis)
	assert.Nil(t, reply.Arbitration)
	require.Len(t, x.reqs, 1)
	assert.Equal(t, "Ali went to the shop.", x.reqs[0].Text)
	assert.Equal(t, "ollama/x", x.reqs[0].Model)
	assert.Equal(t, analysis.DomainPolice, x.reqs[0].Domain)
}

func TestChatMultiAnalysis(t *testing.T) {
	arb := &mockArbiter{}
	o := newTest(&mockInvoker{reply: "done"}, &mockExtractor{}, arb)

	reply, err := o.Chat(context.Background(), ChatRequest{Message: "Ali went to the shop.", AnalysisMode: ModeMulti})
	require.NoError(t, err)
	require.NotNil(t, reply.Arbitration)
	assert.Nil(t, reply.Analysis)
	require.Len(t, arb.reqs, 1)
	assert.Equal(t, "ollama/a", arb.reqs[0].ModelFirst)
	assert.Equal(t, "ollama/ref", arb.reqs[0].ModelReferee)
}

func TestChatFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		inv  *mockInvoker
		x    *mockExtractor
		arb  *mockArbiter
		req  ChatRequest
		want error
	}{
		{"empty message", &mockInvoker{reply: "x"}, &mockExtractor{}, &mockArbiter{}, ChatRequest{Message: "  "}, extract.ErrEmptyText},
		{"bad mode", &mockInvoker{reply: "x"}, &mockExtractor{}, &mockArbiter{}, ChatRequest{Message: "hi", AnalysisMode: "all"}, arbitrate.ErrInvalidRequest},
		{"reply fails", &mockInvoker{err: llm.ErrModelUnavailable}, &mockExtractor{}, &mockArbiter{}, ChatRequest{Message: "hi"}, llm.ErrModelUnavailable},
		{"empty reply", &mockInvoker{reply: "   "}, &mockExtractor{}, &mockArbiter{}, ChatRequest{Message: "hi"}, ErrEmptyReply},
		{"single analysis fails", &mockInvoker{reply: "x"}, &mockExtractor{err: extract.ErrMalformedExtraction}, &mockArbiter{}, ChatRequest{Message: "hi", AnalysisMode: ModeSingle}, extract.ErrMalformedExtraction},
		{"multi analysis fails", &mockInvoker{reply: "x"}, &mockExtractor{}, &mockArbiter{err: &arbitrate.RefereeError{Model: "m", Err: boom}}, ChatRequest{Message: "hi", AnalysisMode: ModeMulti}, arbitrate.ErrRefereeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTest(tt.inv, tt.x, tt.arb)
			reply, err := o.Chat(context.Background(), tt.req)
			assert.Nil(t, reply)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestChatNoModel(t *testing.T) {
	o := New(Components{Invoker: &mockInvoker{reply: "x"}}, Defaults{})
	_, err := o.Chat(context.Background(), ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, llm.ErrModelUnavailable)
}

func TestTranscribeAndChat(t *testing.T) {
	inv := &mockInvoker{reply: "سلام"}
	tr := &mockTranscriber{text: "اسم من علی است"}
	o := New(Components{Invoker: inv, Transcriber: tr}, testDefaults())

	reply, err := o.TranscribeAndChat(context.Background(), strings.NewReader("audio"), "a.webm", ChatRequest{Message: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "fa", tr.language)
	assert.Equal(t, "اسم من علی است", inv.prompt)
	assert.Equal(t, "اسم من علی است", reply.Transcript)
	assert.Equal(t, "سلام", reply.Reply)
	assert.Contains(t, inv.opts.System, "فارسی")
}

func TestTranscribeAndChatErrors(t *testing.T) {
	o := New(Components{Invoker: &mockInvoker{reply: "x"}}, testDefaults())
	_, err := o.TranscribeAndChat(context.Background(), strings.NewReader("a"), "a.wav", ChatRequest{})
	assert.Error(t, err)

	o = New(Components{Invoker: &mockInvoker{reply: "x"}, Transcriber: &mockTranscriber{err: speech.ErrNoSpeech}}, testDefaults())
	_, err = o.TranscribeAndChat(context.Background(), strings.NewReader("a"), "a.wav", ChatRequest{})
	assert.ErrorIs(t, err, speech.ErrNoSpeech)
}

func TestChatSystemPrompt(t *testing.T) {
	assert.Contains(t, ChatSystemPrompt("en", "legal"), "legal-analysis")
	assert.Contains(t, ChatSystemPrompt("en", "unknown"), "text-analysis")
	assert.Contains(t, ChatSystemPrompt("fa-IR", "police"), "امنیتی")
}
