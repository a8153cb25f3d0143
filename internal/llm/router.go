package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// RouterConfig configures a Router.
type RouterConfig struct {
	APIKeys       map[string]string // provider name -> API key (empty = env)
	BaseURLs      map[string]string // provider name -> base URL override
	AllowedModels []string          // model ids the router will serve (empty = any)
	Timeout       time.Duration     // per-request timeout applied to every call
}

// Router resolves "provider/model" identifiers to providers and invokes them.
// Providers are built lazily and cached per identifier. Safe for concurrent use.
type Router struct {
	cfg     RouterConfig
	allowed map[string]bool

	mu        sync.Mutex
	providers map[string]Provider
}

// NewRouter creates a router from cfg.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		cfg:       cfg,
		providers: make(map[string]Provider),
	}
	if len(cfg.AllowedModels) > 0 {
		r.allowed = make(map[string]bool, len(cfg.AllowedModels))
		for _, m := range cfg.AllowedModels {
			r.allowed[strings.TrimSpace(m)] = true
		}
	}
	return r
}

// Register pins a provider to a model identifier, bypassing construction.
func (r *Router) Register(modelID string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.TrimSpace(modelID)] = p
}

// Resolve returns the provider serving modelID.
func (r *Router) Resolve(modelID string) (Provider, error) {
	modelID = strings.TrimSpace(modelID)
	if r.allowed != nil && !r.allowed[modelID] {
		return nil, fmt.Errorf("%w: model %q is not in the allowed list", ErrModelUnavailable, modelID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[modelID]; ok {
		return p, nil
	}

	cfg, err := ParseModelID(modelID)
	if err != nil {
		return nil, err
	}
	cfg.APIKey = r.cfg.APIKeys[cfg.Provider]
	cfg.BaseURL = r.cfg.BaseURLs[cfg.Provider]
	cfg.Timeout = r.cfg.Timeout

	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	r.providers[modelID] = p
	return p, nil
}

// Invoke sends prompt to the model named by modelID and returns its raw text.
// It makes exactly one attempt.
func (r *Router) Invoke(ctx context.Context, modelID, prompt string, opts CompletionOpts) (string, error) {
	p, err := r.Resolve(modelID)
	if err != nil {
		return "", err
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	// Every provider, registered or built, receives the model part of the id
	// unless the caller already set opts.Model.
	if opts.Model == "" {
		if cfg, err := ParseModelID(modelID); err == nil {
			opts.Model = cfg.Model
		}
	}

	start := time.Now()
	out, err := p.Complete(ctx, prompt, opts)
	if err != nil {
		slog.Debug("llm invoke failed", "model", modelID, "elapsed", time.Since(start), "err", err)
		return "", fmt.Errorf("invoking %s: %w", modelID, err)
	}
	slog.Debug("llm invoke", "model", modelID, "elapsed", time.Since(start), "chars", len(out))
	return out, nil
}
