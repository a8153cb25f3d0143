package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hurttlocker/langextract/internal/arbitrate"
	"github.com/hurttlocker/langextract/internal/extract"
	"github.com/hurttlocker/langextract/internal/llm"
	"github.com/hurttlocker/langextract/internal/orchestrator"
	"github.com/hurttlocker/langextract/internal/store"
	"github.com/mark3labs/mcp-go/server"
)

// scriptedInvoker answers extraction calls by model and chat calls with a
// fixed reply, recording the chat history it was sent.
type scriptedInvoker struct {
	mu        sync.Mutex
	histories [][]llm.Message
}

func (s *scriptedInvoker) Invoke(ctx context.Context, model, prompt string, opts llm.CompletionOpts) (string, error) {
	if opts.Format != "json" {
		if strings.HasPrefix(model, "down/") {
			return "", fmt.Errorf("%w: %s", llm.ErrModelUnavailable, model)
		}
		s.mu.Lock()
		s.histories = append(s.histories, opts.History)
		s.mu.Unlock()
		return "Noted.", nil
	}
	switch {
	case strings.HasPrefix(model, "bad/"):
		return "no json here", nil
	case strings.Contains(prompt, "expert referee"):
		return `{"entities":[{"name":"Ali","type":"PERSON"}],"relationships":[]}`, nil
	case model == "ollama/second":
		return `{"entities":[{"name":"Ali","type":"PERSON"}],"relationships":[]}`, nil
	default:
		return `{"entities":[{"name":"Ali","type":"PERSON"},{"name":"Shop","type":"LOCATION"}],"relationships":[]}`, nil
	}
}

func setupTestServer(t *testing.T, withStore bool) (*server.MCPServer, *scriptedInvoker, store.Store) {
	t.Helper()
	inv := &scriptedInvoker{}
	x := extract.New(inv, extract.Options{})
	orch := orchestrator.New(orchestrator.Components{
		Invoker:   inv,
		Extractor: x,
		Arbiter:   arbitrate.New(x),
	}, orchestrator.Defaults{
		Language:     "en",
		ExtractModel: "ollama/first",
		FirstModel:   "ollama/first",
		SecondModel:  "ollama/second",
		RefereeModel: "ollama/referee",
		ChatModel:    "ollama/chat",
	})

	var st store.Store
	if withStore {
		var err error
		st, err = store.NewStore(store.StoreConfig{DBPath: ":memory:"})
		if err != nil {
			t.Fatalf("creating test store: %v", err)
		}
		t.Cleanup(func() { st.Close() })
	}
	return NewServer(ServerConfig{Orchestrator: orch, Store: st, Version: "test"}), inv, st
}

func handle(t *testing.T, srv *server.MCPServer, method string, params map[string]interface{}) json.RawMessage {
	t.Helper()
	result := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}))
	respBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return respBytes
}

// callTool invokes an MCP tool and returns its text content and error flag.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) (string, bool) {
	t.Helper()
	raw := handle(t, srv, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(raw))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result.Content) == 0 {
		t.Fatal("no content in result")
	}
	return resp.Result.Content[0].Text, resp.Result.IsError
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func toolNames(t *testing.T, srv *server.MCPServer) map[string]bool {
	t.Helper()
	raw := handle(t, srv, "tools/list", map[string]interface{}{})
	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal tools/list: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range resp.Result.Tools {
		names[tool.Name] = true
	}
	return names
}

func TestToolRegistration(t *testing.T) {
	srv, _, _ := setupTestServer(t, true)
	names := toolNames(t, srv)
	for _, want := range []string{"langextract_extract", "langextract_analyze", "langextract_chat", "langextract_runs"} {
		if !names[want] {
			t.Errorf("missing tool %s in %v", want, names)
		}
	}

	srv, _, _ = setupTestServer(t, false)
	if toolNames(t, srv)["langextract_runs"] {
		t.Error("runs tool needs a store")
	}
}

func TestExtractTool(t *testing.T) {
	srv, _, st := setupTestServer(t, true)

	text, isErr := callTool(t, srv, "langextract_extract", map[string]interface{}{
		"text":   "Ali went to the shop.",
		"domain": "police",
		"save":   true,
	})
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var out struct {
		ModelName string `json:"model_name"`
		Entities  []struct {
			Name string `json:"name"`
		} `json:"entities"`
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if out.ModelName != "ollama/first" || len(out.Entities) != 2 {
		t.Errorf("unexpected result: %+v", out)
	}
	if out.RunID == "" {
		t.Fatal("expected run id")
	}
	run, err := st.GetRun(context.Background(), out.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Domain != "police" || run.Kind != store.RunExtract {
		t.Errorf("unexpected stored run: %+v", run)
	}
}

func TestExtractToolErrors(t *testing.T) {
	srv, _, _ := setupTestServer(t, false)

	text, isErr := callTool(t, srv, "langextract_extract", map[string]interface{}{"text": "  "})
	if !isErr || !strings.Contains(text, "text is required") {
		t.Errorf("expected missing text error, got %q", text)
	}

	text, isErr = callTool(t, srv, "langextract_extract", map[string]interface{}{"text": "x", "model": "bad/m"})
	if !isErr || !strings.Contains(text, "malformed extraction") {
		t.Errorf("expected malformed error, got %q", text)
	}
}

func TestAnalyzeTool(t *testing.T) {
	srv, _, _ := setupTestServer(t, false)

	text, isErr := callTool(t, srv, "langextract_analyze", map[string]interface{}{"text": "Ali went to the shop."})
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var out struct {
		AgreementScore      float64  `json:"agreement_score"`
		ConflictingEntities []string `json:"conflicting_entities"`
		FinalAnalysis       struct {
			ModelName string `json:"model_name"`
		} `json:"final_analysis"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if out.AgreementScore != 0.5 {
		t.Errorf("expected agreement 0.5, got %v", out.AgreementScore)
	}
	if len(out.ConflictingEntities) != 1 || !strings.HasPrefix(out.ConflictingEntities[0], "Shop (LOCATION)") {
		t.Errorf("unexpected conflicts: %v", out.ConflictingEntities)
	}
	if out.FinalAnalysis.ModelName != "ollama/referee" {
		t.Errorf("final analysis should come from the referee, got %q", out.FinalAnalysis.ModelName)
	}

	text, isErr = callTool(t, srv, "langextract_analyze", map[string]interface{}{"text": "x", "model_second": "bad/m"})
	if !isErr || !strings.Contains(text, "second pass") {
		t.Errorf("expected partial failure naming the second pass, got %q", text)
	}
}

func TestChatToolSessions(t *testing.T) {
	srv, inv, st := setupTestServer(t, true)

	text, isErr := callTool(t, srv, "langextract_chat", map[string]interface{}{"message": "My name is Sara."})
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var first struct {
		Reply     string `json:"reply"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(text), &first); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if first.Reply != "Noted." || first.SessionID == "" {
		t.Fatalf("unexpected reply: %+v", first)
	}

	text, isErr = callTool(t, srv, "langextract_chat", map[string]interface{}{
		"message":    "What is my name?",
		"session_id": first.SessionID,
	})
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}

	inv.mu.Lock()
	history := inv.histories[len(inv.histories)-1]
	inv.mu.Unlock()
	if len(history) != 2 || history[0].Content != "My name is Sara." || history[1].Role != "assistant" {
		t.Errorf("session turns should be sent as history, got %+v", history)
	}

	turns, err := st.Turns(context.Background(), first.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 4 {
		t.Errorf("expected 4 stored turns, got %d", len(turns))
	}

	text, isErr = callTool(t, srv, "langextract_chat", map[string]interface{}{"message": "hi", "session_id": "nope"})
	if !isErr || !strings.Contains(text, "not found") {
		t.Errorf("expected unknown session error, got %q", text)
	}

	text, isErr = callTool(t, srv, "langextract_chat", map[string]interface{}{"message": "hi", "analysis_mode": "deep"})
	if !isErr || !strings.Contains(text, "unknown analysis mode") {
		t.Errorf("expected analysis mode error, got %q", text)
	}
}

func TestChatToolFailedReplyStoresNothing(t *testing.T) {
	srv, _, st := setupTestServer(t, true)

	text, isErr := callTool(t, srv, "langextract_chat", map[string]interface{}{"message": "hello", "model": "down/m"})
	if !isErr {
		t.Fatalf("expected tool error, got %q", text)
	}
	sessions, err := st.ListSessions(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("failed first turn left %d sessions", len(sessions))
	}
}

func TestChatToolStateless(t *testing.T) {
	srv, _, _ := setupTestServer(t, false)

	text, isErr := callTool(t, srv, "langextract_chat", map[string]interface{}{
		"message":       "Ali went to the shop.",
		"analysis_mode": "single",
	})
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var out struct {
		SessionID string          `json:"session_id"`
		Analysis  json.RawMessage `json:"analysis"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if out.SessionID != "" || len(out.Analysis) == 0 {
		t.Errorf("unexpected stateless reply: %s", text)
	}

	_, isErr = callTool(t, srv, "langextract_chat", map[string]interface{}{"message": "hi", "session_id": "abc"})
	if !isErr {
		t.Error("sessions without a store should fail")
	}
}

func TestRunsTool(t *testing.T) {
	srv, _, _ := setupTestServer(t, true)

	callTool(t, srv, "langextract_extract", map[string]interface{}{"text": "Ali went to the shop.", "save": true})
	text, _ := callTool(t, srv, "langextract_analyze", map[string]interface{}{"text": "Ali went to the shop.", "save": true})
	var an struct {
		RunID string `json:"run_id"`
	}
	json.Unmarshal([]byte(text), &an)

	text, isErr := callTool(t, srv, "langextract_runs", map[string]interface{}{})
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var runs []runView
	if err := json.Unmarshal([]byte(text), &runs); err != nil {
		t.Fatalf("parsing runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	text, _ = callTool(t, srv, "langextract_runs", map[string]interface{}{"kind": "analyze", "limit": float64(5)})
	runs = nil
	json.Unmarshal([]byte(text), &runs)
	if len(runs) != 1 || runs[0].ID != an.RunID || runs[0].AgreementScore == nil {
		t.Fatalf("unexpected filtered runs: %+v", runs)
	}

	text, isErr = callTool(t, srv, "langextract_runs", map[string]interface{}{"id": an.RunID})
	if isErr || !strings.Contains(text, `"final_analysis"`) {
		t.Errorf("expected full stored result, got %q", text)
	}

	text, isErr = callTool(t, srv, "langextract_runs", map[string]interface{}{"id": "missing"})
	if !isErr || !strings.Contains(text, "not found") {
		t.Errorf("expected not found, got %q", text)
	}
}

func readResource(t *testing.T, srv *server.MCPServer, uri string) string {
	t.Helper()
	raw := handle(t, srv, "resources/read", map[string]interface{}{"uri": uri})
	var resp struct {
		Result struct {
			Contents []struct {
				URI  string `json:"uri"`
				Text string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal resource: %v", err)
	}
	if len(resp.Result.Contents) == 0 {
		t.Fatalf("no contents for %s: %s", uri, raw)
	}
	return resp.Result.Contents[0].Text
}

func TestResources(t *testing.T) {
	srv, _, _ := setupTestServer(t, true)
	callTool(t, srv, "langextract_chat", map[string]interface{}{"message": "hello"})

	var stats map[string]int64
	if err := json.Unmarshal([]byte(readResource(t, srv, "langextract://stats")), &stats); err != nil {
		t.Fatalf("parsing stats: %v", err)
	}
	if stats["sessions"] != 1 || stats["turns"] != 2 || stats["runs"] != 0 {
		t.Errorf("unexpected stats: %v", stats)
	}

	var domains map[string][]string
	if err := json.Unmarshal([]byte(readResource(t, srv, "langextract://domains")), &domains); err != nil {
		t.Fatalf("parsing domains: %v", err)
	}
	if len(domains["domains"]) != 4 || domains["schemas"][0] != "general" {
		t.Errorf("unexpected domains: %v", domains)
	}
}
