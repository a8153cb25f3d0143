package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/ingest"
	"github.com/hurttlocker/langextract/internal/llm"
	"github.com/hurttlocker/langextract/internal/orchestrator"
	"github.com/hurttlocker/langextract/internal/store"
)

type echoInvoker struct {
	histories [][]llm.Message
}

func (e *echoInvoker) Invoke(_ context.Context, _, prompt string, opts llm.CompletionOpts) (string, error) {
	e.histories = append(e.histories, opts.History)
	return "you said: " + prompt, nil
}

func TestReadInput(t *testing.T) {
	ctx := context.Background()
	eng := ingest.NewEngine(0)

	got, err := readInput(ctx, inputFlags{text: "Ali went home."}, eng, strings.NewReader(""))
	if err != nil || got != "Ali went home." {
		t.Fatalf("text: got %q, %v", got, err)
	}

	if _, err := readInput(ctx, inputFlags{text: "a", file: "b.txt"}, eng, strings.NewReader("")); err == nil {
		t.Fatal("expected error for --text with --file")
	}

	path := filepath.Join(t.TempDir(), "statement.txt")
	if err := os.WriteFile(path, []byte("line one\r\nline two\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = readInput(ctx, inputFlags{file: path}, eng, strings.NewReader(""))
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if !strings.Contains(got, "line one\nline two") {
		t.Errorf("file: got %q", got)
	}

	got, err = readInput(ctx, inputFlags{}, eng, strings.NewReader("  piped text \n"))
	if err != nil || got != "piped text" {
		t.Fatalf("stdin: got %q, %v", got, err)
	}

	if _, err := readInput(ctx, inputFlags{}, eng, strings.NewReader("   ")); err == nil {
		t.Fatal("expected error for empty stdin")
	}
}

func TestLoadExamples(t *testing.T) {
	if got, err := loadExamples(""); err != nil || got != nil {
		t.Fatalf("empty path: got %v, %v", got, err)
	}

	dir := t.TempDir()
	good := filepath.Join(dir, "shots.json")
	body := `[{"text":"Sara met Reza.","entities":[{"name":"Sara","type":"PERSON"},{"name":"Reza","type":"PERSON"}],
	"relationships":[{"source_entity_id":"Sara","target_entity_id":"Reza","type":"MET"}]}]`
	if err := os.WriteFile(good, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := loadExamples(good)
	if err != nil {
		t.Fatalf("loadExamples: %v", err)
	}
	if len(got) != 1 || len(got[0].Entities) != 2 || got[0].Relationships[0].Type != "MET" {
		t.Errorf("unexpected examples: %+v", got)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"text":`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadExamples(bad); err == nil {
		t.Error("expected parse error")
	}
	if _, err := loadExamples(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected read error")
	}
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"  spread\n over   lines ", 40, "spread over lines"},
		{"abcdefghij", 4, "abcd..."},
		{"علی به مغازه رفت", 3, "علی..."},
	}
	for _, tt := range tests {
		if got := snippet(tt.in, tt.n); got != tt.want {
			t.Errorf("snippet(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRenderAnalysis(t *testing.T) {
	score := 0.8
	var buf bytes.Buffer
	renderAnalysis(&buf, "Extraction", &analysis.ModelAnalysis{
		ModelName:       "ollama/gemma3:4b",
		Entities:        []analysis.Entity{{Name: "Ali", Type: "PERSON", Attributes: map[string]any{"role": "suspect", "age": 30}}},
		Relationships:   []analysis.Relationship{{SourceEntityID: "Ali", TargetEntityID: "Shop", Type: "VISITED"}},
		ConfidenceScore: &score,
	})
	out := buf.String()
	for _, want := range []string{"Extraction", "ollama/gemma3:4b", "0.80", "Ali", "PERSON", "age=30, role=suspect", "Ali -[VISITED]-> Shop"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRunsEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderRuns(&buf, nil)
	if !strings.Contains(buf.String(), "No runs stored.") {
		t.Errorf("got %q", buf.String())
	}
}

func TestChatSessionPersistsTurns(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer st.Close()

	inv := &echoInvoker{}
	orch := orchestrator.New(orchestrator.Components{Invoker: inv}, orchestrator.Defaults{
		Language:  "en",
		ChatModel: "ollama/chat",
	})

	cs := &chatSession{orch: orch, store: st, base: orchestrator.ChatRequest{Language: "en", Domain: "general"}}
	if _, err := cs.turn(ctx, "   ", nil, ""); err == nil {
		t.Fatal("expected error for empty message")
	}
	if cs.id != "" {
		t.Fatal("a failed first turn must not start a session")
	}
	if sessions, _ := st.ListSessions(ctx, 0); len(sessions) != 0 {
		t.Fatalf("expected no stored sessions, got %d", len(sessions))
	}

	reply, err := cs.turn(ctx, "hello there", nil, "")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if reply.Reply != "you said: hello there" {
		t.Errorf("reply = %q", reply.Reply)
	}
	if cs.id == "" {
		t.Fatal("expected a session id after the first exchange")
	}

	resumed := &chatSession{orch: orch, store: st}
	if err := resumed.resume(ctx, cs.id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(resumed.history) != 2 {
		t.Fatalf("history = %d turns, want 2", len(resumed.history))
	}
	if resumed.history[0].Role != analysis.RoleUser || resumed.history[1].Content != "you said: hello there" {
		t.Errorf("unexpected history: %+v", resumed.history)
	}
	if _, err := resumed.turn(ctx, "again", nil, ""); err != nil {
		t.Fatalf("turn: %v", err)
	}
	last := inv.histories[len(inv.histories)-1]
	if len(last) != 2 {
		t.Errorf("model saw %d history messages, want 2", len(last))
	}
	turns, err := st.Turns(ctx, cs.id)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 4 {
		t.Errorf("stored %d turns, want 4", len(turns))
	}

	if err := (&chatSession{orch: orch, store: st}).resume(ctx, "no-such-session"); err == nil {
		t.Error("expected error resuming unknown session")
	}
}

func TestChatSessionInMemory(t *testing.T) {
	orch := orchestrator.New(orchestrator.Components{Invoker: &echoInvoker{}}, orchestrator.Defaults{ChatModel: "ollama/chat"})
	cs := &chatSession{orch: orch}
	for _, msg := range []string{"one", "two"} {
		if _, err := cs.turn(context.Background(), msg, nil, ""); err != nil {
			t.Fatalf("turn %q: %v", msg, err)
		}
	}
	if len(cs.history) != 4 {
		t.Errorf("history = %d turns, want 4", len(cs.history))
	}
}

func TestSummarizeRun(t *testing.T) {
	score := 0.5
	run, err := store.NewAnalyzeRun(&analysis.MultiModelResponse{
		Text:           strings.Repeat("word ", 40),
		Language:       "en",
		Domain:         "police",
		FirstAnalysis:  analysis.ModelAnalysis{ModelName: "ollama/a"},
		SecondAnalysis: analysis.ModelAnalysis{ModelName: "ollama/b"},
		FinalAnalysis:  analysis.ModelAnalysis{ModelName: "ollama/c"},
		AgreementScore: score,
	})
	if err != nil {
		t.Fatal(err)
	}
	run.ID = "run-1"
	got := summarizeRun(run)
	if got.Kind != "analyze" || got.ID != "run-1" || len(got.Models) != 3 {
		t.Errorf("unexpected summary: %+v", got)
	}
	if got.AgreementScore == nil || *got.AgreementScore != score {
		t.Errorf("agreement = %v", got.AgreementScore)
	}
	if !strings.HasSuffix(got.Preview, "...") {
		t.Errorf("preview not truncated: %q", got.Preview)
	}
}
