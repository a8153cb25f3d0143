// Package mcp provides a Model Context Protocol server for langextract.
//
// It exposes extraction, multi-model analysis, chat and run history as MCP
// tools, and store statistics and the supported domains as MCP resources.
// The server is served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/metrics"
	"github.com/hurttlocker/langextract/internal/orchestrator"
	"github.com/hurttlocker/langextract/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig holds configuration for the MCP server. Store is optional;
// without it runs are not saved and chat is stateless.
type ServerConfig struct {
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store
	Version      string // version string for MCP server info
}

// NewServer creates a configured MCP server with all tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"langextract",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerExtractTool(s, cfg.Orchestrator, cfg.Store)
	registerAnalyzeTool(s, cfg.Orchestrator, cfg.Store)
	registerChatTool(s, cfg.Orchestrator, cfg.Store)
	if cfg.Store != nil {
		registerRunsTool(s, cfg.Store)
		registerStatsResource(s, cfg.Store)
	}
	registerDomainsResource(s)

	return s
}

// ServeStdio serves s on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// timed records the call in the tool metrics. Tool-level errors count as
// failures.
func timed(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		done := metrics.TimeTool(name)
		res, err := h(ctx, req)
		done(err == nil && res != nil && !res.IsError)
		return res, err
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// --- Tools ---

func registerExtractTool(s *server.MCPServer, orch *orchestrator.Orchestrator, st store.Store) {
	tool := mcp.NewTool("langextract_extract",
		mcp.WithDescription("Extract entities and relationships from text with a single model. Returns JSON with entities, relationships and the model name."),
		mcp.WithReadOnlyHintAnnotation(st == nil),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to analyze"),
		),
		mcp.WithString("language",
			mcp.Description("Language code of the text (default: fa)"),
		),
		mcp.WithString("domain",
			mcp.Description("Analysis domain"),
			mcp.Enum(analysis.Domains()...),
		),
		mcp.WithString("model",
			mcp.Description("Model id as provider/model, e.g. ollama/gemma3:4b (default: configured model)"),
		),
		mcp.WithBoolean("save",
			mcp.Description("Store the result in run history (default: false)"),
		),
	)

	s.AddTool(tool, timed("langextract_extract", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("text is required"), nil
		}
		d := orch.Defaults()
		lang := analysis.NormalizeLanguage(orDefault(req.GetString("language", ""), d.Language))
		domain := analysis.NormalizeDomain(orDefault(req.GetString("domain", ""), d.Domain))

		a, err := orch.Extract(ctx, orchestrator.ExtractRequest{
			Text:     text,
			Language: lang,
			Domain:   domain,
			Model:    req.GetString("model", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extract error: %v", err)), nil
		}

		out := struct {
			*analysis.ModelAnalysis
			RunID string `json:"run_id,omitempty"`
		}{ModelAnalysis: a}
		if st != nil && req.GetBool("save", false) {
			run, err := store.NewExtractRun(text, lang, domain, a)
			if err == nil {
				out.RunID, err = st.SaveRun(ctx, run)
			}
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("saving run: %v", err)), nil
			}
		}
		return jsonResult(out)
	}))
}

func registerAnalyzeTool(s *server.MCPServer, orch *orchestrator.Orchestrator, st store.Store) {
	tool := mcp.NewTool("langextract_analyze",
		mcp.WithDescription("Run two models independently over the text, then a referee model that resolves their disagreements. Returns all three analyses, the agreement score and the conflicts."),
		mcp.WithReadOnlyHintAnnotation(st == nil),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to analyze"),
		),
		mcp.WithString("language",
			mcp.Description("Language code of the text (default: fa)"),
		),
		mcp.WithString("domain",
			mcp.Description("Analysis domain"),
			mcp.Enum(analysis.Domains()...),
		),
		mcp.WithString("model_first",
			mcp.Description("First independent model (default: configured)"),
		),
		mcp.WithString("model_second",
			mcp.Description("Second independent model; must differ from the first (default: configured)"),
		),
		mcp.WithString("model_referee",
			mcp.Description("Referee model (default: configured)"),
		),
		mcp.WithBoolean("save",
			mcp.Description("Store the result in run history (default: false)"),
		),
	)

	s.AddTool(tool, timed("langextract_analyze", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("text is required"), nil
		}

		resp, err := orch.Analyze(ctx, orchestrator.AnalyzeRequest{
			Text:         text,
			Language:     req.GetString("language", ""),
			Domain:       req.GetString("domain", ""),
			ModelFirst:   req.GetString("model_first", ""),
			ModelSecond:  req.GetString("model_second", ""),
			ModelReferee: req.GetString("model_referee", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("analyze error: %v", err)), nil
		}

		out := struct {
			*analysis.MultiModelResponse
			RunID string `json:"run_id,omitempty"`
		}{MultiModelResponse: resp}
		if st != nil && req.GetBool("save", false) {
			run, err := store.NewAnalyzeRun(resp)
			if err == nil {
				out.RunID, err = st.SaveRun(ctx, run)
			}
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("saving run: %v", err)), nil
			}
		}
		return jsonResult(out)
	}))
}

func registerChatTool(s *server.MCPServer, orch *orchestrator.Orchestrator, st store.Store) {
	tool := mcp.NewTool("langextract_chat",
		mcp.WithDescription("Send one chat message to the analysis assistant. With a store configured, the conversation is kept in a session: omit session_id to start one and pass the returned id to continue it."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The user's message"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session to continue. Empty = start a new session"),
		),
		mcp.WithString("language",
			mcp.Description("Reply language (default: fa)"),
		),
		mcp.WithString("domain",
			mcp.Description("Assistant domain"),
			mcp.Enum(analysis.Domains()...),
		),
		mcp.WithString("model",
			mcp.Description("Chat model (default: configured)"),
		),
		mcp.WithString("analysis_mode",
			mcp.Description("Structured analysis of the message alongside the reply: none, single or multi (default: none)"),
			mcp.Enum(string(orchestrator.ModeNone), string(orchestrator.ModeSingle), string(orchestrator.ModeMulti)),
		),
	)

	s.AddTool(tool, timed("langextract_chat", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil || strings.TrimSpace(message) == "" {
			return mcp.NewToolResultError("message is required"), nil
		}
		mode, err := orchestrator.ParseAnalysisMode(req.GetString("analysis_mode", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		lang := req.GetString("language", "")
		domain := req.GetString("domain", "")

		sessionID := req.GetString("session_id", "")
		var history []analysis.Turn
		if st == nil && sessionID != "" {
			return mcp.NewToolResultError("sessions need a store; run with a database configured"), nil
		}
		if st != nil && sessionID != "" {
			history, err = st.Turns(ctx, sessionID)
			if errors.Is(err, store.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("session %s not found", sessionID)), nil
			}
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("session error: %v", err)), nil
			}
		}

		reply, err := orch.Chat(ctx, orchestrator.ChatRequest{
			Message:      message,
			History:      history,
			Language:     lang,
			Domain:       domain,
			Model:        req.GetString("model", ""),
			AnalysisMode: mode,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("chat error: %v", err)), nil
		}

		if st != nil {
			if sessionID == "" {
				sessionID, err = st.StartSession(ctx, &store.Session{Title: title(message), Language: lang, Domain: domain}, message, reply.Reply)
			} else {
				_, err = st.AppendExchange(ctx, sessionID, message, reply.Reply)
			}
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("saving turn: %v", err)), nil
			}
		}
		return jsonResult(struct {
			*orchestrator.ChatReply
			SessionID string `json:"session_id,omitempty"`
		}{ChatReply: reply, SessionID: sessionID})
	}))
}

// runView is the compact listing form of a stored run.
type runView struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	Language       string   `json:"language"`
	Domain         string   `json:"domain"`
	Models         []string `json:"models"`
	AgreementScore *float64 `json:"agreement_score,omitempty"`
	Snippet        string   `json:"snippet"`
	CreatedAt      string   `json:"created_at"`
}

func registerRunsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("langextract_runs",
		mcp.WithDescription("List stored extraction and analysis runs, newest first, or fetch one run's full result by id."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Description("Run id. When set, the full stored result is returned"),
		),
		mcp.WithString("kind",
			mcp.Description("Filter by kind"),
			mcp.Enum(string(store.RunExtract), string(store.RunAnalyze)),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, timed("langextract_runs", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if id := req.GetString("id", ""); id != "" {
			run, err := st.GetRun(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("run %s not found", id)), nil
			}
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("runs error: %v", err)), nil
			}
			return jsonResult(struct {
				runView
				Text   string          `json:"text"`
				Result json.RawMessage `json:"result"`
			}{runView: viewRun(run), Text: run.Text, Result: run.Payload})
		}

		f := store.RunFilter{Kind: store.RunKind(req.GetString("kind", "")), Limit: 20}
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			limit := int(limitVal)
			if limit > 100 {
				limit = 100
			}
			if limit > 0 {
				f.Limit = limit
			}
		}
		runs, err := st.ListRuns(ctx, f)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("runs error: %v", err)), nil
		}
		views := make([]runView, 0, len(runs))
		for _, r := range runs {
			views = append(views, viewRun(r))
		}
		return jsonResult(views)
	}))
}

// --- Helpers ---

func viewRun(r *store.Run) runView {
	snippet := r.Text
	if runes := []rune(snippet); len(runes) > 200 {
		snippet = string(runes[:200]) + "..."
	}
	return runView{
		ID:             r.ID,
		Kind:           string(r.Kind),
		Language:       r.Language,
		Domain:         r.Domain,
		Models:         r.Models,
		AgreementScore: r.AgreementScore,
		Snippet:        snippet,
		CreatedAt:      r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func title(message string) string {
	message = strings.Join(strings.Fields(message), " ")
	if runes := []rune(message); len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return message
}

func orDefault(v, fallback string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return fallback
}
