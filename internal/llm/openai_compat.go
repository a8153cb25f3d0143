package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// openaiCompatProvider implements Provider against any OpenAI-compatible
// /chat/completions endpoint (OpenRouter, OpenAI, DeepSeek, custom gateways).
type openaiCompatProvider struct {
	provider string
	apiKey   string
	model    string
	endpoint string
	client   http.Client
}

// OpenAI-compatible request/response types.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
	Error   *chatError   `json:"error,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func newOpenAICompatProvider(cfg Config) (*openaiCompatProvider, error) {
	p := &openaiCompatProvider{
		provider: strings.ToLower(cfg.Provider),
		model:    cfg.Model,
	}
	p.client.Timeout = cfg.Timeout

	var baseURL string
	switch p.provider {
	case "openrouter":
		p.apiKey = firstEnv(cfg.APIKey, "OPENROUTER_API_KEY")
		baseURL = "https://openrouter.ai/api/v1"
		if p.model == "" {
			p.model = "openai/gpt-4o-mini"
		}
	case "openai":
		p.apiKey = firstEnv(cfg.APIKey, "OPENAI_API_KEY")
		baseURL = "https://api.openai.com/v1"
		if p.model == "" {
			p.model = "gpt-4o-mini"
		}
	case "deepseek":
		p.apiKey = firstEnv(cfg.APIKey, "DEEPSEEK_API_KEY")
		baseURL = "https://api.deepseek.com/v1"
		if p.model == "" {
			p.model = "deepseek-chat"
		}
	case "custom":
		// Custom gateways are configured entirely through env vars or BaseURL.
		p.apiKey = firstEnv(cfg.APIKey, "LANGEXTRACT_LLM_API_KEY")
		baseURL = os.Getenv("LANGEXTRACT_LLM_ENDPOINT")
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	if baseURL == "" {
		return nil, fmt.Errorf("%w: %s provider requires an endpoint (set LANGEXTRACT_LLM_ENDPOINT)", ErrModelUnavailable, p.provider)
	}
	if p.apiKey == "" && p.provider != "custom" {
		return nil, fmt.Errorf("%w: %s provider requires an API key (set %s_API_KEY)", ErrModelUnavailable, p.provider, strings.ToUpper(p.provider))
	}
	p.endpoint = strings.TrimRight(baseURL, "/") + "/chat/completions"
	return p, nil
}

func (o *openaiCompatProvider) Name() string {
	return o.provider + "/" + o.model
}

func (o *openaiCompatProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}

	messages := make([]Message, 0, len(opts.History)+2)
	if opts.System != "" {
		messages = append(messages, Message{Role: "system", Content: opts.System})
	}
	messages = append(messages, opts.History...)
	messages = append(messages, Message{Role: "user", Content: prompt})

	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if strings.ToLower(opts.Format) == "json" {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	if o.provider == "openrouter" {
		httpReq.Header.Set("HTTP-Referer", "https://github.com/hurttlocker/langextract")
		httpReq.Header.Set("X-Title", "langextract")
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{Provider: o.provider, StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var cResp chatResponse
	if err := json.Unmarshal(respBody, &cResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}

	if cResp.Error != nil {
		return "", fmt.Errorf("%s API error: %s", o.provider, cResp.Error.Message)
	}

	if len(cResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from %s API", o.provider)
	}

	return strings.TrimSpace(cResp.Choices[0].Message.Content), nil
}
