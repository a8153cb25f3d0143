// Package config resolves settings from the YAML config file, the environment
// and command-line flags, in that order of increasing precedence. Every
// resolved value remembers where it came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultModel          = "ollama/gemma3:4b"
	DefaultSecondModel    = "ollama/llama3.2:3b"
	DefaultRefereeModel   = "ollama/qwen2.5:7b"
	DefaultOllamaHost     = "http://127.0.0.1:11434"
	DefaultServerAddr     = "127.0.0.1:8000"
	DefaultSpeechEndpoint = "http://127.0.0.1:8001"
	DefaultMetricsAddr    = "127.0.0.1:9464"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// Int parses the value, returning 0 when it is empty or invalid.
func (v ResolvedValue) Int() int {
	n, _ := strconv.Atoi(v.Value)
	return n
}

// Float parses the value, returning 0 when it is empty or invalid.
func (v ResolvedValue) Float() float64 {
	f, _ := strconv.ParseFloat(v.Value, 64)
	return f
}

// Bool parses the value, returning false when it is empty or invalid.
func (v ResolvedValue) Bool() bool {
	b, _ := strconv.ParseBool(v.Value)
	return b
}

// List splits a comma-separated value, dropping empty items.
func (v ResolvedValue) List() []string {
	var out []string
	for _, s := range strings.Split(v.Value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type ResolveOptions struct {
	ConfigPath  string
	CLIDBPath   string
	CLILLM      string
	CLIFirst    string
	CLISecond   string
	CLIReferee  string
	CLIChat     string
	CLIAddr     string
	CLILogLevel string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath ResolvedValue `json:"db_path"`

	DefaultModel  ResolvedValue `json:"default_model"`
	FirstModel    ResolvedValue `json:"first_model"`
	SecondModel   ResolvedValue `json:"second_model"`
	RefereeModel  ResolvedValue `json:"referee_model"`
	ChatModel     ResolvedValue `json:"chat_model"`
	AllowedModels ResolvedValue `json:"allowed_models"`
	OllamaHost    ResolvedValue `json:"ollama_host"`

	Temperature     ResolvedValue `json:"temperature"`
	MaxOutputTokens ResolvedValue `json:"max_output_tokens"`
	MaxInputChars   ResolvedValue `json:"max_input_chars"`
	ChunkOverlap    ResolvedValue `json:"chunk_overlap_chars"`
	MaxChunks       ResolvedValue `json:"max_chunks"`
	TimeoutSecs     ResolvedValue `json:"timeout_secs"`
	TokenizerPath   ResolvedValue `json:"tokenizer_path"`

	ContextCap     ResolvedValue `json:"context_cap"`
	ServerAddr     ResolvedValue `json:"server_addr"`
	SpeechEndpoint ResolvedValue `json:"speech_endpoint"`

	LogLevel          ResolvedValue `json:"log_level"`
	LogFile           ResolvedValue `json:"log_file"`
	MetricsPrometheus ResolvedValue `json:"metrics_prometheus"`
	MetricsAddr       ResolvedValue `json:"metrics_addr"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	LLM    struct {
		DefaultModel  string   `yaml:"default_model"`
		FirstModel    string   `yaml:"first_model"`
		SecondModel   string   `yaml:"second_model"`
		RefereeModel  string   `yaml:"referee_model"`
		ChatModel     string   `yaml:"chat_model"`
		APIKey        string   `yaml:"api_key"`
		AllowedModels []string `yaml:"allowed_models"`
		OllamaHost    string   `yaml:"ollama_host"`
	} `yaml:"llm"`
	Extract struct {
		Temperature     *float64 `yaml:"temperature"`
		MaxOutputTokens *int     `yaml:"max_output_tokens"`
		MaxInputChars   *int     `yaml:"max_input_chars"`
		ChunkOverlap    *int     `yaml:"chunk_overlap_chars"`
		MaxChunks       *int     `yaml:"max_chunks"`
		TimeoutSecs     *int     `yaml:"timeout_secs"`
		TokenizerPath   string   `yaml:"tokenizer_path"`
	} `yaml:"extract"`
	Chat struct {
		ContextCap *int `yaml:"context_cap"`
	} `yaml:"chat"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Speech struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"speech"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Metrics struct {
		Prometheus *bool  `yaml:"prometheus"`
		Addr       string `yaml:"addr"`
	} `yaml:"metrics"`
}

var providerKeyEnv = map[string]string{
	"OPENROUTER_API_KEY": "openrouter",
	"OPENAI_API_KEY":     "openai",
	"GEMINI_API_KEY":     "google",
	"GOOGLE_API_KEY":     "google",
	"DEEPSEEK_API_KEY":   "deepseek",
	"ANTHROPIC_API_KEY":  "anthropic",
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".langextract", "config.yaml")
}

func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".langextract", "langextract.db")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	if cfg != nil {
		out.applyFile(cfg, path)
	}
	out.applyEnvironment()

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.DefaultModel, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.FirstModel, opts.CLIFirst, SourceCLI, "--first")
	apply(&out.SecondModel, opts.CLISecond, SourceCLI, "--second")
	apply(&out.RefereeModel, opts.CLIReferee, SourceCLI, "--referee")
	apply(&out.ChatModel, opts.CLIChat, SourceCLI, "--chat-model")
	apply(&out.ServerAddr, opts.CLIAddr, SourceCLI, "--addr")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")

	out.applyDefaults()
	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.LogFile.Value != "" {
		out.LogFile.Value = expandUserPath(out.LogFile.Value)
	}
	if out.TokenizerPath.Value != "" {
		out.TokenizerPath.Value = expandUserPath(out.TokenizerPath.Value)
	}

	if err := out.validate(); err != nil {
		return out, err
	}
	return out, nil
}

func (r *ResolvedConfig) applyFile(cfg *fileConfig, path string) {
	apply(&r.DBPath, cfg.DBPath, SourceConfig, path)
	apply(&r.DefaultModel, cfg.LLM.DefaultModel, SourceConfig, path)
	apply(&r.FirstModel, cfg.LLM.FirstModel, SourceConfig, path)
	apply(&r.SecondModel, cfg.LLM.SecondModel, SourceConfig, path)
	apply(&r.RefereeModel, cfg.LLM.RefereeModel, SourceConfig, path)
	apply(&r.ChatModel, cfg.LLM.ChatModel, SourceConfig, path)
	apply(&r.AllowedModels, strings.Join(cfg.LLM.AllowedModels, ","), SourceConfig, path)
	apply(&r.OllamaHost, cfg.LLM.OllamaHost, SourceConfig, path)

	if v := cfg.Extract.Temperature; v != nil {
		apply(&r.Temperature, strconv.FormatFloat(*v, 'f', -1, 64), SourceConfig, path)
	}
	applyInt(&r.MaxOutputTokens, cfg.Extract.MaxOutputTokens, path)
	applyInt(&r.MaxInputChars, cfg.Extract.MaxInputChars, path)
	applyInt(&r.ChunkOverlap, cfg.Extract.ChunkOverlap, path)
	applyInt(&r.MaxChunks, cfg.Extract.MaxChunks, path)
	applyInt(&r.TimeoutSecs, cfg.Extract.TimeoutSecs, path)
	apply(&r.TokenizerPath, cfg.Extract.TokenizerPath, SourceConfig, path)
	applyInt(&r.ContextCap, cfg.Chat.ContextCap, path)

	apply(&r.ServerAddr, cfg.Server.Addr, SourceConfig, path)
	apply(&r.SpeechEndpoint, cfg.Speech.Endpoint, SourceConfig, path)
	apply(&r.LogLevel, cfg.Log.Level, SourceConfig, path)
	apply(&r.LogFile, cfg.Log.File, SourceConfig, path)
	if v := cfg.Metrics.Prometheus; v != nil {
		apply(&r.MetricsPrometheus, strconv.FormatBool(*v), SourceConfig, path)
	}
	apply(&r.MetricsAddr, cfg.Metrics.Addr, SourceConfig, path)

	// A bare api_key applies to every provider the file names a model for.
	if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
		providers := map[string]struct{}{}
		for _, v := range []string{cfg.LLM.DefaultModel, cfg.LLM.FirstModel, cfg.LLM.SecondModel, cfg.LLM.RefereeModel, cfg.LLM.ChatModel} {
			if p := providerOf(v); p != "" {
				providers[p] = struct{}{}
			}
		}
		if len(providers) == 0 {
			providers["default"] = struct{}{}
		}
		for p := range providers {
			r.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}
}

func (r *ResolvedConfig) applyEnvironment() {
	applyEnv(&r.DBPath, "LANGEXTRACT_DB")

	if m := strings.TrimSpace(os.Getenv("OLLAMA_MODEL")); m != "" {
		if !strings.HasPrefix(m, "ollama/") {
			m = "ollama/" + m
		}
		r.DefaultModel = ResolvedValue{Value: m, Source: SourceEnv, From: "OLLAMA_MODEL"}
	}
	applyEnv(&r.DefaultModel, "LANGEXTRACT_LLM")
	applyEnv(&r.FirstModel, "LANGEXTRACT_LLM_FIRST")
	applyEnv(&r.SecondModel, "LANGEXTRACT_LLM_SECOND")
	applyEnv(&r.RefereeModel, "LANGEXTRACT_LLM_REFEREE")
	applyEnv(&r.ChatModel, "LANGEXTRACT_LLM_CHAT")
	applyEnv(&r.AllowedModels, "LANGEXTRACT_ALLOWED_MODELS")
	applyEnv(&r.OllamaHost, "OLLAMA_HOST")

	applyEnv(&r.Temperature, "TEMPERATURE")
	applyEnv(&r.MaxOutputTokens, "MAX_OUTPUT_TOKENS")
	applyEnv(&r.MaxInputChars, "MAX_INPUT_CHARS")
	applyEnv(&r.ChunkOverlap, "CHUNK_OVERLAP_CHARS")
	applyEnv(&r.MaxChunks, "MAX_CHUNKS")
	applyEnv(&r.TimeoutSecs, "REQUEST_TIMEOUT_SECONDS")
	applyEnv(&r.TokenizerPath, "LANGEXTRACT_TOKENIZER")
	applyEnv(&r.ContextCap, "LANGEXTRACT_CONTEXT_CAP")

	applyEnv(&r.ServerAddr, "LANGEXTRACT_ADDR")
	applyEnv(&r.SpeechEndpoint, "SPEECH_ENDPOINT")
	applyEnv(&r.LogLevel, "LANGEXTRACT_LOG_LEVEL")
	applyEnv(&r.LogFile, "LANGEXTRACT_LOG_FILE")
	applyEnv(&r.MetricsPrometheus, "METRICS_PROMETHEUS")
	applyEnv(&r.MetricsAddr, "METRICS_ADDR")

	for env, provider := range providerKeyEnv {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			r.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}
}

func (r *ResolvedConfig) applyDefaults() {
	setDefault(&r.DBPath, DefaultDBPath())
	setDefault(&r.DefaultModel, DefaultModel)
	if r.FirstModel.Value == "" {
		r.FirstModel = r.DefaultModel
	}
	setDefault(&r.SecondModel, DefaultSecondModel)
	setDefault(&r.RefereeModel, DefaultRefereeModel)
	if r.ChatModel.Value == "" {
		r.ChatModel = r.DefaultModel
	}
	setDefault(&r.OllamaHost, DefaultOllamaHost)
	setDefault(&r.Temperature, "0")
	setDefault(&r.MaxOutputTokens, "1024")
	setDefault(&r.MaxInputChars, "12000")
	setDefault(&r.ChunkOverlap, "200")
	setDefault(&r.MaxChunks, "8")
	setDefault(&r.TimeoutSecs, "120")
	setDefault(&r.ContextCap, "18")
	setDefault(&r.ServerAddr, DefaultServerAddr)
	setDefault(&r.SpeechEndpoint, DefaultSpeechEndpoint)
	setDefault(&r.LogLevel, "info")
	setDefault(&r.MetricsPrometheus, "false")
	setDefault(&r.MetricsAddr, DefaultMetricsAddr)
}

func (r ResolvedConfig) validate() error {
	ints := []struct {
		name string
		v    ResolvedValue
	}{
		{"max_output_tokens", r.MaxOutputTokens},
		{"max_input_chars", r.MaxInputChars},
		{"chunk_overlap_chars", r.ChunkOverlap},
		{"max_chunks", r.MaxChunks},
		{"timeout_secs", r.TimeoutSecs},
		{"context_cap", r.ContextCap},
	}
	for _, c := range ints {
		n, err := strconv.Atoi(c.v.Value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %s %q (from %s %s): want a non-negative integer", c.name, c.v.Value, c.v.Source, c.v.From)
		}
	}
	if t, err := strconv.ParseFloat(r.Temperature.Value, 64); err != nil || t < 0 || t > 2 {
		return fmt.Errorf("invalid temperature %q (from %s %s): want a number in [0, 2]", r.Temperature.Value, r.Temperature.Source, r.Temperature.From)
	}
	if _, err := strconv.ParseBool(r.MetricsPrometheus.Value); err != nil {
		return fmt.Errorf("invalid metrics.prometheus %q (from %s %s): want true or false", r.MetricsPrometheus.Value, r.MetricsPrometheus.Source, r.MetricsPrometheus.From)
	}
	return nil
}

// Entry is one named setting, for display.
type Entry struct {
	Key string
	ResolvedValue
}

// Entries lists every setting in display order. API keys are masked.
func (r ResolvedConfig) Entries() []Entry {
	out := []Entry{
		{"db_path", r.DBPath},
		{"llm.default_model", r.DefaultModel},
		{"llm.first_model", r.FirstModel},
		{"llm.second_model", r.SecondModel},
		{"llm.referee_model", r.RefereeModel},
		{"llm.chat_model", r.ChatModel},
		{"llm.allowed_models", r.AllowedModels},
		{"llm.ollama_host", r.OllamaHost},
		{"extract.temperature", r.Temperature},
		{"extract.max_output_tokens", r.MaxOutputTokens},
		{"extract.max_input_chars", r.MaxInputChars},
		{"extract.chunk_overlap_chars", r.ChunkOverlap},
		{"extract.max_chunks", r.MaxChunks},
		{"extract.timeout_secs", r.TimeoutSecs},
		{"extract.tokenizer_path", r.TokenizerPath},
		{"chat.context_cap", r.ContextCap},
		{"server.addr", r.ServerAddr},
		{"speech.endpoint", r.SpeechEndpoint},
		{"log.level", r.LogLevel},
		{"log.file", r.LogFile},
		{"metrics.prometheus", r.MetricsPrometheus},
		{"metrics.addr", r.MetricsAddr},
	}
	providers := make([]string, 0, len(r.LLMKeys))
	for p := range r.LLMKeys {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		v := r.LLMKeys[p]
		v.Value = maskKey(v.Value)
		out = append(out, Entry{"llm.api_key." + p, v})
	}
	return out
}

func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

// APIKeys returns the key for every provider that has one, with a "default"
// key copied to the providers of the configured models that lack their own.
func (r ResolvedConfig) APIKeys() map[string]string {
	out := make(map[string]string, len(r.LLMKeys))
	for p, v := range r.LLMKeys {
		if p != "default" {
			out[p] = v.Value
		}
	}
	for _, m := range []ResolvedValue{r.DefaultModel, r.FirstModel, r.SecondModel, r.RefereeModel, r.ChatModel} {
		p := providerOf(m.Value)
		if _, ok := out[p]; ok || p == "" {
			continue
		}
		if k := r.APIKeyForProvider(p).Value; k != "" {
			out[p] = k
		}
	}
	return out
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyInt(dst *ResolvedValue, v *int, path string) {
	if v != nil {
		apply(dst, strconv.Itoa(*v), SourceConfig, path)
	}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func setDefault(dst *ResolvedValue, v string) {
	if dst.Value == "" {
		*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func maskKey(k string) string {
	if len(k) <= 8 {
		return strings.Repeat("*", len(k))
	}
	return k[:4] + strings.Repeat("*", len(k)-8) + k[len(k)-4:]
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
