package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaHost matches the Ollama daemon's default listen address.
const DefaultOllamaHost = "http://127.0.0.1:11434"

// ollamaProvider implements Provider against a local or remote Ollama daemon.
type ollamaProvider struct {
	client *api.Client
	model  string
}

func newOllamaProvider(model, baseURL string, timeout time.Duration) (*ollamaProvider, error) {
	host := baseURL
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = DefaultOllamaHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ollama host %q: %v", ErrModelUnavailable, host, err)
	}
	return &ollamaProvider{
		client: api.NewClient(u, &http.Client{Timeout: timeout}),
		model:  model,
	}, nil
}

func (o *ollamaProvider) Name() string {
	return "ollama/" + o.model
}

func (o *ollamaProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}

	messages := make([]api.Message, 0, len(opts.History)+2)
	if opts.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: opts.System})
	}
	for _, m := range opts.History {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, api.Message{Role: "user", Content: prompt})

	options := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
	if strings.ToLower(opts.Format) == "json" {
		req.Format = json.RawMessage(`"json"`)
	}

	var sb strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: ollama model %q: %s", ErrModelUnavailable, model, statusErr.ErrorMessage)
		}
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return content, nil
}
