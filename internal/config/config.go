// Package config loads docsync settings from defaults, ~/.docsync/config.yaml
// and DOCSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/docsync/internal/digest"
)

// Fetch error policies.
const (
	OnFetchErrorAbort = "abort"
	OnFetchErrorSkip  = "skip"
)

// Global configuration structure.
type Global struct {
	// Digest pipeline
	WindowSize     int      `mapstructure:"window_size" yaml:"window_size"`
	WindowOverlap  int      `mapstructure:"window_overlap" yaml:"window_overlap"`
	MaxWindows     int      `mapstructure:"max_windows" yaml:"max_windows"`
	BundleMaxBytes int      `mapstructure:"bundle_max_bytes" yaml:"bundle_max_bytes"`
	Concurrency    int      `mapstructure:"concurrency" yaml:"concurrency"`
	OnFetchError   string   `mapstructure:"on_fetch_error" yaml:"on_fetch_error"`
	DocIDs         []string `mapstructure:"doc_ids" yaml:"doc_ids"`
	Allowlist      []string `mapstructure:"allowlist" yaml:"allowlist"`

	// Model
	APIKey               string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel         string  `mapstructure:"default_model" yaml:"default_model"`
	DefaultProvider      string  `mapstructure:"default_provider" yaml:"default_provider"`
	MaxTokens            int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature          float64 `mapstructure:"temperature" yaml:"temperature"`
	ReduceTitleWithModel bool    `mapstructure:"reduce_title_with_model" yaml:"reduce_title_with_model"`
	ModelsCatalog        string  `mapstructure:"models_catalog" yaml:"models_catalog,omitempty"`

	// Document source
	SourceURLTemplate string `mapstructure:"source_url_template" yaml:"source_url_template"`
	SourceToken       string `mapstructure:"source_token" yaml:"source_token"`

	// Local state
	CacheEnabled bool   `mapstructure:"cache_enabled" yaml:"cache_enabled"`
	CacheDir     string `mapstructure:"cache_dir" yaml:"cache_dir"`
	RunsDir      string `mapstructure:"runs_dir" yaml:"runs_dir"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("window_size", 10000)
	v.SetDefault("window_overlap", 500)
	v.SetDefault("max_windows", 200)
	v.SetDefault("bundle_max_bytes", 100000)
	v.SetDefault("concurrency", 1)
	v.SetDefault("on_fetch_error", OnFetchErrorAbort)
	v.SetDefault("doc_ids", []string{})
	v.SetDefault("allowlist", []string{})

	v.SetDefault("api_key", "")
	v.SetDefault("default_model", "openai/gpt-4.1-mini")
	v.SetDefault("default_provider", "openrouter")
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("temperature", 0.2)
	v.SetDefault("reduce_title_with_model", true)
	v.SetDefault("models_catalog", "")

	v.SetDefault("source_url_template", "https://www.googleapis.com/drive/v3/files/{id}/export?mimeType=text/plain")
	v.SetDefault("source_token", "")

	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_dir", "")
	v.SetDefault("runs_dir", filepath.Join(".docsync", "runs"))
	v.SetDefault("log_level", "info")

	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)

	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 120)
}

// Dir is the per-user config directory, ~/.docsync.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".docsync"), nil
}

// Load loads configuration from defaults, the config file and the
// environment. Precedence: env > config file > defaults; CLI flags are
// applied afterwards by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The provider's own variable works without the prefix too.
	_ = v.BindEnv("api_key", "DOCSYNC_API_KEY", "OPENROUTER_API_KEY")
	setDefaults(v)

	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; a malformed one is not.
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.DocIDs = splitList(c.DocIDs)
	c.Allowlist = splitList(c.Allowlist)
	if c.CacheDir == "" {
		c.CacheDir = dir
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// splitList flattens comma-separated entries, which is how list values
// arrive from environment variables.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate rejects settings the pipeline cannot run with.
func (c *Global) Validate() error {
	switch c.OnFetchError {
	case OnFetchErrorAbort, OnFetchErrorSkip:
	default:
		return fmt.Errorf("invalid on_fetch_error: %q (use abort or skip)", c.OnFetchError)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency: %d (must be >= 1)", c.Concurrency)
	}
	if c.WindowOverlap < 0 {
		return fmt.Errorf("invalid window_overlap: %d", c.WindowOverlap)
	}
	return nil
}

// DigestOptions builds the explicit options passed to the pipeline.
func (c *Global) DigestOptions() digest.Options {
	return digest.Options{
		WindowSize:      c.WindowSize,
		WindowOverlap:   c.WindowOverlap,
		MaxWindows:      c.MaxWindows,
		BundleMaxBytes:  c.BundleMaxBytes,
		Concurrency:     c.Concurrency,
		Model:           c.DefaultModel,
		SkipFailedFetch: c.OnFetchError == OnFetchErrorSkip,
	}
}

// HTTPTimeout returns the configured HTTP timeout.
func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// Save writes c to cfgFile, or to ~/.docsync/config.yaml when cfgFile is empty.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
