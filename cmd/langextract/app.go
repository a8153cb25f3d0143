package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hurttlocker/langextract/internal/analysis"
	"github.com/hurttlocker/langextract/internal/arbitrate"
	"github.com/hurttlocker/langextract/internal/config"
	"github.com/hurttlocker/langextract/internal/extract"
	"github.com/hurttlocker/langextract/internal/ingest"
	"github.com/hurttlocker/langextract/internal/llm"
	"github.com/hurttlocker/langextract/internal/logging"
	"github.com/hurttlocker/langextract/internal/metrics"
	"github.com/hurttlocker/langextract/internal/orchestrator"
	"github.com/hurttlocker/langextract/internal/speech"
	"github.com/hurttlocker/langextract/internal/store"
)

// modelFlags are the per-command model overrides.
type modelFlags struct {
	first   string
	second  string
	referee string
	chat    string
	addr    string
}

// app is everything a command needs, built from the resolved config.
type app struct {
	cfg     config.ResolvedConfig
	orch    *orchestrator.Orchestrator
	speech  *speech.Client
	ingest  *ingest.Engine
	store   store.Store
	closers []io.Closer
}

func resolveConfig(m modelFlags) (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath:  flags.configPath,
		CLIDBPath:   flags.dbPath,
		CLILLM:      flags.llm,
		CLIFirst:    m.first,
		CLISecond:   m.second,
		CLIReferee:  m.referee,
		CLIChat:     m.chat,
		CLIAddr:     m.addr,
		CLILogLevel: flags.logLevel,
	})
}

// newApp resolves config, installs logging and metrics, and wires the
// pipeline. The store is opened only when withStore is set.
func newApp(m modelFlags, withStore bool) (*app, error) {
	cfg, err := resolveConfig(m)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	logCloser, err := logging.Setup(logging.Options{Level: cfg.LogLevel.Value, File: cfg.LogFile.Value})
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	a.closers = append(a.closers, logCloser)
	if err := metrics.Init(cfg.MetricsPrometheus.Bool(), cfg.MetricsAddr.Value); err != nil {
		slog.Warn("metrics disabled", "err", err)
	}

	timeout := time.Duration(cfg.TimeoutSecs.Int()) * time.Second
	router := llm.NewRouter(llm.RouterConfig{
		APIKeys:       cfg.APIKeys(),
		BaseURLs:      map[string]string{"ollama": cfg.OllamaHost.Value},
		AllowedModels: cfg.AllowedModels.List(),
		Timeout:       timeout,
	})

	chunker := extract.Chunker{
		MaxSize:   cfg.MaxInputChars.Int(),
		Overlap:   cfg.ChunkOverlap.Int(),
		MaxChunks: cfg.MaxChunks.Int(),
	}
	if path := cfg.TokenizerPath.Value; path != "" {
		tk, err := extract.LoadTokenizer(path)
		if err != nil {
			a.Close()
			return nil, err
		}
		// Budgets are configured in characters; a token is about four.
		chunker.Counter = tk
		chunker.MaxSize /= 4
		chunker.Overlap /= 4
	}

	x := extract.New(router, extract.Options{
		Temperature:     cfg.Temperature.Float(),
		MaxOutputTokens: cfg.MaxOutputTokens.Int(),
		Timeout:         timeout,
		Chunker:         chunker,
	})
	a.speech = speech.NewClient(cfg.SpeechEndpoint.Value, timeout)
	a.ingest = ingest.NewEngine(ingest.DefaultMaxFileSize)
	a.orch = orchestrator.New(orchestrator.Components{
		Invoker:     router,
		Extractor:   x,
		Arbiter:     arbitrate.New(x),
		Transcriber: a.speech,
	}, orchestrator.Defaults{
		Language:        analysis.DefaultLanguage,
		Domain:          analysis.DomainGeneral,
		ExtractModel:    cfg.DefaultModel.Value,
		FirstModel:      cfg.FirstModel.Value,
		SecondModel:     cfg.SecondModel.Value,
		RefereeModel:    cfg.RefereeModel.Value,
		ChatModel:       cfg.ChatModel.Value,
		ContextCap:      cfg.ContextCap.Int(),
		ChatTemperature: cfg.Temperature.Float(),
		ChatMaxTokens:   cfg.MaxOutputTokens.Int(),
	})

	if withStore {
		st, err := store.NewStore(store.StoreConfig{DBPath: cfg.DBPath.Value})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening store: %w", err)
		}
		a.store = st
		a.closers = append(a.closers, st)
	}

	slog.Debug("langextract configured",
		"config", cfg.ConfigPath,
		"model", cfg.DefaultModel.Value,
		"first", cfg.FirstModel.Value,
		"second", cfg.SecondModel.Value,
		"referee", cfg.RefereeModel.Value)
	return a, nil
}

// Close releases the store and the log file, last opened first.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
