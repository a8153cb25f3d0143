// Package llm is the model invocation layer for langextract.
//
// It exposes a provider-agnostic Provider interface with Gemini, OpenAI-compatible
// (OpenRouter, OpenAI, DeepSeek, custom), Anthropic and Ollama backends, and a
// Router that resolves "provider/model" identifiers to providers. The layer makes
// exactly one call per request; retrying is left to the caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrModelUnavailable is returned when a model identifier cannot be served:
// unknown provider, missing credentials, a model outside the allow-list, or an
// upstream "model not found".
var ErrModelUnavailable = errors.New("model unavailable")

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns a human-readable provider name (e.g., "ollama/gemma3:4b").
	Name() string
}

// Message is one prior chat turn sent ahead of the prompt.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int       // Max tokens to generate (0 = provider default)
	Temperature float64   // 0.0-2.0 (0 = deterministic)
	Model       string    // Override model for this request (empty = use provider default)
	Format      string    // "json" for structured output, empty for plain text
	System      string    // System prompt (optional)
	History     []Message // Prior turns, oldest first, placed between system and prompt
}

// Config holds provider configuration.
type Config struct {
	Provider string        // "google", "openrouter", "openai", "deepseek", "custom", "anthropic", "ollama"
	Model    string        // e.g., "gemma3:4b", "openai/gpt-4o-mini"
	APIKey   string        // API key (empty = read from env)
	BaseURL  string        // Optional URL override
	Timeout  time.Duration // Per-request HTTP timeout (0 = none beyond ctx)
}

// HTTPError is a non-200 response from a REST provider.
type HTTPError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Is maps 404 responses onto ErrModelUnavailable.
func (e *HTTPError) Is(target error) bool {
	return target == ErrModelUnavailable && e.StatusCode == 404
}

// Providers lists the supported provider names.
var Providers = []string{"google", "openrouter", "openai", "deepseek", "custom", "anthropic", "ollama"}

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "google":
		key := firstEnv(cfg.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: google provider requires GEMINI_API_KEY or GOOGLE_API_KEY env var", ErrModelUnavailable)
		}
		model := cfg.Model
		if model == "" {
			model = "gemini-2.5-flash"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://generativelanguage.googleapis.com/v1beta"
		}
		p := &googleProvider{apiKey: key, model: model, baseURL: baseURL}
		p.client.Timeout = cfg.Timeout
		return p, nil

	case "openrouter", "openai", "deepseek", "custom":
		p, err := newOpenAICompatProvider(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil

	case "anthropic":
		key := firstEnv(cfg.APIKey, "ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("%w: anthropic provider requires ANTHROPIC_API_KEY env var", ErrModelUnavailable)
		}
		model := cfg.Model
		if model == "" {
			model = "claude-3-5-haiku-20241022"
		}
		return newAnthropicProvider(key, model, cfg.BaseURL, cfg.Timeout), nil

	case "ollama":
		model := cfg.Model
		if model == "" {
			model = "gemma3:4b"
		}
		p, err := newOllamaProvider(model, cfg.BaseURL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: unknown LLM provider %q (supported: %s)", ErrModelUnavailable, cfg.Provider, strings.Join(Providers, ", "))
	}
}

// ParseModelID parses a "provider/model" identifier into a Config.
// Model names may themselves contain slashes and colons, e.g.
// "openrouter/google/gemini-2.0-flash-exp:free" or "ollama/gemma3:4b".
func ParseModelID(id string) (Config, error) {
	id = strings.TrimSpace(id)
	slashIdx := strings.Index(id, "/")
	if slashIdx == -1 {
		return Config{}, fmt.Errorf("%w: invalid model id %q: expected provider/model (e.g., ollama/gemma3:4b)", ErrModelUnavailable, id)
	}

	provider := strings.ToLower(id[:slashIdx])
	model := id[slashIdx+1:]
	if provider == "" || model == "" {
		return Config{}, fmt.Errorf("%w: invalid model id %q: empty provider or model", ErrModelUnavailable, id)
	}

	for _, p := range Providers {
		if p == provider {
			return Config{Provider: provider, Model: model}, nil
		}
	}
	return Config{}, fmt.Errorf("%w: unknown provider %q in model id (supported: %s)", ErrModelUnavailable, provider, strings.Join(Providers, ", "))
}

func firstEnv(explicit string, envKeys ...string) string {
	if explicit != "" {
		return explicit
	}
	for _, k := range envKeys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
