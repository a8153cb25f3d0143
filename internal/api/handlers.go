package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/extract"
	"github.com/hurttlocker/langextract/internal/orchestrator"
	"github.com/hurttlocker/langextract/internal/report"
	"github.com/hurttlocker/langextract/internal/store"
)

// ExtractRequest is the body of /api/extract and /api/report.
type ExtractRequest struct {
	Text     string            `json:"text"`
	Language string            `json:"language,omitempty"`
	Domain   string            `json:"domain,omitempty"`
	Schema   string            `json:"schema,omitempty"`
	Model    string            `json:"model,omitempty"`
	Examples []extract.Example `json:"examples,omitempty"`
	Save     bool              `json:"save,omitempty"`
}

// ExtractResponse is a single-model extraction.
type ExtractResponse struct {
	Text            string                  `json:"text"`
	Language        string                  `json:"language"`
	Domain          string                  `json:"domain"`
	Model           string                  `json:"model"`
	Entities        []analysis.Entity       `json:"entities"`
	Relationships   []analysis.Relationship `json:"relationships"`
	ConfidenceScore *float64                `json:"confidence_score,omitempty"`
	RunID           string                  `json:"run_id,omitempty"`
}

// AnalyzeRequest is the body of /api/analyze.
type AnalyzeRequest struct {
	Text         string `json:"text"`
	Language     string `json:"language,omitempty"`
	Domain       string `json:"domain,omitempty"`
	ModelFirst   string `json:"model_first,omitempty"`
	ModelSecond  string `json:"model_second,omitempty"`
	ModelReferee string `json:"model_referee,omitempty"`
	Save         bool   `json:"save,omitempty"`
}

// AnalyzeResponse is a multi-model response plus the id of its stored run.
type AnalyzeResponse struct {
	*analysis.MultiModelResponse
	RunID string `json:"run_id,omitempty"`
}

// ChatRequest is the body of /api/chat. With SessionID the stored session
// supplies the history and receives both new turns; NewSession starts one.
type ChatRequest struct {
	Message      string          `json:"message"`
	History      []analysis.Turn `json:"history,omitempty"`
	Language     string          `json:"language,omitempty"`
	Domain       string          `json:"domain,omitempty"`
	Model        string          `json:"model,omitempty"`
	AnalysisMode string          `json:"analysis_mode,omitempty"`
	ExtractModel string          `json:"extract_model,omitempty"`
	ModelFirst   string          `json:"model_first,omitempty"`
	ModelSecond  string          `json:"model_second,omitempty"`
	ModelReferee string          `json:"model_referee,omitempty"`
	ContextCap   int             `json:"context_cap,omitempty"`
	SessionID    string          `json:"session_id,omitempty"`
	NewSession   bool            `json:"new_session,omitempty"`
}

// ChatResponse is the reply to one chat turn.
type ChatResponse struct {
	*orchestrator.ChatReply
	SessionID string `json:"session_id,omitempty"`
}

// RunSummary is a stored run without its payload.
type RunSummary struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Language       string    `json:"language"`
	Domain         string    `json:"domain"`
	Models         []string  `json:"models"`
	AgreementScore *float64  `json:"agreement_score,omitempty"`
	Preview        string    `json:"preview"`
	CreatedAt      time.Time `json:"created_at"`
}

// RunDetail is a stored run with its decoded payload.
type RunDetail struct {
	RunSummary
	Text   string          `json:"text"`
	Result json.RawMessage `json:"result"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	for k, v := range s.cfg.Info {
		out[k] = v
	}
	d := s.cfg.Orchestrator.Defaults()
	out["model"] = d.ExtractModel
	out["store"] = s.cfg.Store != nil
	out["speech"] = s.cfg.Speech != nil
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"schemas": analysis.Schemas()})
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"domains": analysis.Domains()})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := s.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.extract(r, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExtractFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxBodyBytes); err != nil {
		writeError(w, r, badRequest("invalid multipart form: %v", err))
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, badRequest("missing 'file' field"))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, r, badRequest("reading upload: %v", err))
		return
	}
	text, err := s.cfg.Ingest.ExtractBytes(hdr.Filename, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	save, _ := strconv.ParseBool(r.FormValue("save"))
	resp, err := s.extract(r, ExtractRequest{
		Text:     text,
		Language: r.FormValue("language"),
		Domain:   r.FormValue("domain"),
		Schema:   r.FormValue("schema"),
		Model:    r.FormValue("model"),
		Save:     save,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) extract(r *http.Request, req ExtractRequest) (*ExtractResponse, error) {
	ctx := r.Context()
	a, err := s.cfg.Orchestrator.Extract(ctx, orchestrator.ExtractRequest{
		Text:     req.Text,
		Language: req.Language,
		Domain:   req.Domain,
		Schema:   req.Schema,
		Model:    req.Model,
		Examples: req.Examples,
	})
	if err != nil {
		return nil, err
	}
	d := s.cfg.Orchestrator.Defaults()
	resp := &ExtractResponse{
		Text:            req.Text,
		Language:        analysis.NormalizeLanguage(orDefault(req.Language, d.Language)),
		Domain:          analysis.NormalizeDomain(orDefault(req.Domain, d.Domain)),
		Model:           a.ModelName,
		Entities:        a.Entities,
		Relationships:   a.Relationships,
		ConfidenceScore: a.ConfidenceScore,
	}
	if req.Save && s.cfg.Store != nil {
		run, err := store.NewExtractRun(resp.Text, resp.Language, resp.Domain, a)
		if err != nil {
			return nil, err
		}
		if resp.RunID, err = s.cfg.Store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("saving run: %w", err)
		}
	}
	return resp, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := s.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.analyze(r, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) analyze(r *http.Request, req AnalyzeRequest) (*AnalyzeResponse, error) {
	ctx := r.Context()
	resp, err := s.cfg.Orchestrator.Analyze(ctx, orchestrator.AnalyzeRequest{
		Text:         req.Text,
		Language:     req.Language,
		Domain:       req.Domain,
		ModelFirst:   req.ModelFirst,
		ModelSecond:  req.ModelSecond,
		ModelReferee: req.ModelReferee,
	})
	if err != nil {
		return nil, err
	}
	out := &AnalyzeResponse{MultiModelResponse: resp}
	if req.Save && s.cfg.Store != nil {
		run, err := store.NewAnalyzeRun(resp)
		if err != nil {
			return nil, err
		}
		if out.RunID, err = s.cfg.Store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("saving run: %w", err)
		}
	}
	return out, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := s.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	mode, err := orchestrator.ParseAnalysisMode(req.AnalysisMode)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sessionID := req.SessionID
	history := req.History
	persist := sessionID != "" || req.NewSession
	if persist {
		if s.cfg.Store == nil {
			writeError(w, r, fmt.Errorf("chat sessions: %w", errUnavailable))
			return
		}
		if sessionID != "" {
			if history, err = s.cfg.Store.Turns(ctx, sessionID); err != nil {
				writeError(w, r, err)
				return
			}
		}
	}

	reply, err := s.cfg.Orchestrator.Chat(ctx, orchestrator.ChatRequest{
		Message:      req.Message,
		History:      history,
		Language:     req.Language,
		Domain:       req.Domain,
		Model:        req.Model,
		AnalysisMode: mode,
		ExtractModel: req.ExtractModel,
		ModelFirst:   req.ModelFirst,
		ModelSecond:  req.ModelSecond,
		ModelReferee: req.ModelReferee,
		ContextCap:   req.ContextCap,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	// The session and its turns are written only once the reply exists.
	if persist {
		if sessionID == "" {
			sessionID, err = s.cfg.Store.StartSession(ctx, &store.Session{
				Title:    sessionTitle(req.Message),
				Language: req.Language,
				Domain:   req.Domain,
			}, req.Message, reply.Reply)
		} else {
			_, err = s.cfg.Store.AppendExchange(ctx, sessionID, req.Message, reply.Reply)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, ChatResponse{ChatReply: reply, SessionID: sessionID})
}

// ReportRequest is the body of /api/report. AnalysisMode "multi" renders an
// arbitration instead of a single extraction.
type ReportRequest struct {
	ExtractRequest
	AnalysisMode string `json:"analysis_mode,omitempty"`
	ModelFirst   string `json:"model_first,omitempty"`
	ModelSecond  string `json:"model_second,omitempty"`
	ModelReferee string `json:"model_referee,omitempty"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := s.readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := orchestrator.ParseAnalysisMode(req.AnalysisMode)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.renderReport(r, &buf, mode, req); err != nil {
		writeError(w, r, err)
		return
	}
	writeHTML(w, buf.Bytes())
}

func (s *Server) renderReport(r *http.Request, w io.Writer, mode orchestrator.AnalysisMode, req ReportRequest) error {
	if mode == orchestrator.ModeMulti {
		resp, err := s.analyze(r, AnalyzeRequest{
			Text:         req.Text,
			Language:     req.Language,
			Domain:       req.Domain,
			ModelFirst:   req.ModelFirst,
			ModelSecond:  req.ModelSecond,
			ModelReferee: req.ModelReferee,
			Save:         req.Save,
		})
		if err != nil {
			return err
		}
		return report.WriteArbitration(w, resp.MultiModelResponse)
	}
	resp, err := s.extract(r, req.ExtractRequest)
	if err != nil {
		return err
	}
	return report.WriteExtraction(w, resp.Text, resp.Language, &analysis.ModelAnalysis{
		ModelName:       resp.Model,
		Entities:        resp.Entities,
		Relationships:   resp.Relationships,
		ConfidenceScore: resp.ConfidenceScore,
	})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Speech == nil {
		writeError(w, r, fmt.Errorf("speech service: %w", errUnavailable))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxBodyBytes); err != nil {
		writeError(w, r, badRequest("invalid multipart form: %v", err))
		return
	}
	f, hdr, err := r.FormFile("audio_file")
	if err != nil {
		writeError(w, r, badRequest("missing 'audio_file' field"))
		return
	}
	defer f.Close()
	d := s.cfg.Orchestrator.Defaults()
	lang := analysis.NormalizeLanguage(orDefault(r.FormValue("language"), d.Language))
	res, err := s.cfg.Speech.Transcribe(r.Context(), f, hdr.Filename, lang)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, r, fmt.Errorf("run history: %w", errUnavailable))
		return
	}
	q := r.URL.Query()
	f := store.RunFilter{Kind: store.RunKind(q.Get("kind"))}
	if f.Kind != "" && f.Kind != store.RunExtract && f.Kind != store.RunAnalyze {
		writeError(w, r, badRequest("kind must be extract or analyze"))
		return
	}
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			f.Limit = v
		}
	}
	if o := q.Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v > 0 {
			f.Offset = v
		}
	}
	runs, err := s.cfg.Store.ListRuns(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, summarize(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out, "total": len(out)})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.lookupRun(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RunDetail{
		RunSummary: summarize(run),
		Text:       run.Text,
		Result:     json.RawMessage(run.Payload),
	})
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	run, err := s.lookupRun(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	switch run.Kind {
	case store.RunAnalyze:
		resp, derr := run.Response()
		if derr != nil {
			writeError(w, r, derr)
			return
		}
		err = report.WriteArbitration(&buf, resp)
	default:
		a, derr := run.Analysis()
		if derr != nil {
			writeError(w, r, derr)
			return
		}
		err = report.WriteExtraction(&buf, run.Text, run.Language, a)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeHTML(w, buf.Bytes())
}

func (s *Server) lookupRun(r *http.Request) (*store.Run, error) {
	if s.cfg.Store == nil {
		return nil, fmt.Errorf("run history: %w", errUnavailable)
	}
	id := r.PathValue("id")
	if id == "" {
		return nil, badRequest("run id required")
	}
	run, err := s.cfg.Store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("run %s: %w", id, err)
		}
		return nil, err
	}
	return run, nil
}

func summarize(run *store.Run) RunSummary {
	return RunSummary{
		ID:             run.ID,
		Kind:           string(run.Kind),
		Language:       run.Language,
		Domain:         run.Domain,
		Models:         run.Models,
		AgreementScore: run.AgreementScore,
		Preview:        preview(run.Text, 80),
		CreatedAt:      run.CreatedAt,
	}
}

func writeHTML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}

func sessionTitle(message string) string {
	return preview(message, 60)
}

func orDefault(v, fallback string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return fallback
}
