package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/KaramelBytes/docsync/internal/ai"
	"github.com/KaramelBytes/docsync/internal/cache"
	cfgpkg "github.com/KaramelBytes/docsync/internal/config"
	"github.com/KaramelBytes/docsync/internal/digest"
	"github.com/KaramelBytes/docsync/internal/source"
)

// flagKeys maps command flags onto config keys. Only flags the user set are
// applied, so config and env values survive otherwise.
var flagKeys = map[string]string{
	"window-size":    "window_size",
	"overlap":        "window_overlap",
	"max-windows":    "max_windows",
	"max-bytes":      "bundle_max_bytes",
	"concurrency":    "concurrency",
	"model":          "default_model",
	"provider":       "default_provider",
	"ollama-host":    "ollama_host",
	"on-fetch-error": "on_fetch_error",
}

func addPipelineFlags(f *pflag.FlagSet) {
	f.Int("max-bytes", 0, "bundle byte ceiling (overrides bundle_max_bytes)")
	f.Int("window-size", 0, "window size in characters (overrides window_size)")
	f.Int("overlap", 0, "characters shared by consecutive windows (overrides window_overlap)")
	f.Int("max-windows", 0, "per-document window cap (overrides max_windows)")
	f.Int("concurrency", 0, "window summaries in flight per document (overrides concurrency)")
	f.String("model", "", "model name (overrides default_model)")
	f.String("provider", "", "provider: openrouter|ollama (overrides default_provider)")
	f.String("ollama-host", "", "Ollama host URL (overrides ollama_host)")
	f.String("on-fetch-error", "", "abort|skip when a document cannot be retrieved")
	f.Bool("no-cache", false, "do not read or write the digest cache")
}

// withFlags returns a copy of base with every changed flag in fs applied.
func withFlags(base *cfgpkg.Global, fs *pflag.FlagSet) (*cfgpkg.Global, error) {
	c := *base
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if f.Name == "no-cache" {
			c.CacheEnabled = f.Value.String() != "true"
			return
		}
		if key, ok := flagKeys[f.Name]; ok {
			if serr := c.Set(key, f.Value.String()); serr != nil {
				err = fmt.Errorf("--%s: %w", f.Name, serr)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// resolveIDs prefers positional arguments and falls back to doc_ids.
func resolveIDs(args []string, c *cfgpkg.Global) ([]string, error) {
	var ids []string
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			ids = append(ids, a)
		}
	}
	if len(ids) == 0 && c != nil {
		ids = append(ids, c.DocIDs...)
	}
	if len(ids) == 0 {
		return nil, errors.New("no document ids: pass them as arguments or set doc_ids (DOCSYNC_DOC_IDS)")
	}
	return ids, nil
}

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 3
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName := strings.ToLower(strings.TrimSpace(opts.ProviderFlag))
	if providerName == "" && cfg != nil && cfg.DefaultProvider != "" {
		providerName = strings.ToLower(cfg.DefaultProvider)
	}
	if providerName == "" {
		providerName = ai.ProviderOpenRouter
	}
	switch providerName {
	case ai.ProviderLocal:
		providerName = ai.ProviderOllama
	case "openai", "anthropic", "google", "gemini", "meta", "llama":
		providerName = ai.ProviderOpenRouter
	}

	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	}
	if cfg != nil {
		rc.APIKey = cfg.APIKey
	}

	if providerName == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = "http://127.0.0.1:11434"
		}
		rc.Host = host
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}

	client, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s", providerName)
	}
	return client, providerName, nil
}

func selectModel(cfg *cfgpkg.Global, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.DefaultModel != "" {
		return cfg.DefaultModel
	}
	return "openai/gpt-4.1-mini"
}

// buildSource routes file: ids and local paths to disk, everything else to
// the URL template.
func buildSource(c *cfgpkg.Global) source.Source {
	remote := source.NewHTTPSource(c.SourceURLTemplate, c.SourceToken, c.HTTPTimeout())
	return source.Mux{
		Files:       source.FileSource{},
		Remote:      remote,
		Default:     remote,
		PreferLocal: true,
	}
}

// errTrap passes calls through and keeps the first failure. The pipeline
// degrades instead of failing, so this is how a run explains itself.
type errTrap struct {
	next digest.Completer
	mu   sync.Mutex
	err  error
}

func (t *errTrap) Complete(ctx context.Context, system, input string, temperature float64) (string, error) {
	out, err := t.next.Complete(ctx, system, input, temperature)
	if err != nil {
		t.mu.Lock()
		if t.err == nil {
			t.err = err
		}
		t.mu.Unlock()
	}
	return out, err
}

func (t *errTrap) First() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// app is everything a digest or sync run needs, built from one config.
type app struct {
	cfg      *cfgpkg.Global
	provider string
	model    string
	llm      *errTrap
	pipeline *digest.Pipeline
	store    *cache.Store
	logger   *slog.Logger
}

func newApp(c *cfgpkg.Global, logw io.Writer) (*app, error) {
	logger := newLogger(logw, c.LogLevel, debug)
	rt, provider, err := buildRuntime(c, runtimeOptions{OllamaHost: c.OllamaHost})
	if err != nil {
		return nil, err
	}
	model := selectModel(c, c.DefaultModel)
	llm := &errTrap{next: ai.Capability{Runtime: rt, Model: model, MaxTokens: c.MaxTokens}}

	opts := c.DigestOptions()
	opts.Model = model
	a := &app{cfg: c, provider: provider, model: model, llm: llm, logger: logger}
	a.pipeline = &digest.Pipeline{
		Source:     buildSource(c),
		Summarizer: digest.NewSummarizer(llm, c.Temperature, logger),
		Reducer:    digest.NewReducer(llm, c.Temperature, c.ReduceTitleWithModel, logger),
		Options:    opts,
		Logger:     logger,
	}
	if c.CacheEnabled {
		st, err := cache.Open(c.CacheDir)
		if err != nil {
			logger.Warn("digest cache unavailable", "dir", c.CacheDir, "err", err)
		} else {
			a.store = st
			a.pipeline.Cache = st
		}
	}
	logger.Debug("run configured", "provider", provider, "model", model,
		"window_size", opts.WindowSize, "overlap", opts.WindowOverlap, "max_bytes", opts.BundleMaxBytes)
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// explainAIError maps typed provider errors to an actionable message.
func explainAIError(err error, providerName, model string) error {
	var (
		unreach *ai.UnreachableError
		authErr *ai.AuthError
		rlErr   *ai.RateLimitError
		nfErr   *ai.ModelNotFoundError
		brErr   *ai.BadRequestError
		qErr    *ai.QuotaExceededError
		sErr    *ai.ServerError
	)
	switch {
	case errors.As(err, &unreach):
		if providerName == ai.ProviderOllama {
			return fmt.Errorf("Ollama not reachable at %s. Ensure Ollama is running and the host is correct; set DOCSYNC_OLLAMA_HOST or config 'ollama_host'. Detail: %w", unreach.Host, err)
		}
		return fmt.Errorf("endpoint unreachable. Check your network and provider settings: %w", err)
	case errors.As(err, &authErr):
		return fmt.Errorf("authentication failed: set OPENROUTER_API_KEY or add api_key in config (~/.docsync/config.yaml): %w", err)
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			return fmt.Errorf("rate limited, try again in ~%ds: %w", int(rlErr.RetryAfter.Seconds()), err)
		}
		return fmt.Errorf("rate limited by provider, please retry: %w", err)
	case errors.As(err, &nfErr):
		if providerName == ai.ProviderOllama {
			return fmt.Errorf("local model not available (%s). Install it with 'ollama pull %s' or choose another model: %w", model, model, err)
		}
		return fmt.Errorf("model not found (%s). Verify the model name or check 'docsync models show': %w", model, err)
	case errors.As(err, &brErr):
		return fmt.Errorf("request rejected by provider; try a smaller --window-size: %w", err)
	case errors.As(err, &qErr):
		return fmt.Errorf("quota/billing issue. Check your provider account: %w", err)
	case errors.As(err, &sErr):
		return fmt.Errorf("provider appears unavailable (server error). Please retry later: %w", err)
	default:
		return fmt.Errorf("model call failed: %w", err)
	}
}
