package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type setter func(c *Global, val string) error

func intKey(dst func(*Global) *int, min int) setter {
	return func(c *Global, val string) error {
		i, err := strconv.Atoi(val)
		if err != nil || i < min {
			return fmt.Errorf("invalid int %q (must be >= %d)", val, min)
		}
		*dst(c) = i
		return nil
	}
}

func stringKey(dst func(*Global) *string) setter {
	return func(c *Global, val string) error {
		*dst(c) = val
		return nil
	}
}

func boolKey(dst func(*Global) *bool) setter {
	return func(c *Global, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool %q", val)
		}
		*dst(c) = b
		return nil
	}
}

func listKey(dst func(*Global) *[]string) setter {
	return func(c *Global, val string) error {
		*dst(c) = splitList([]string{val})
		return nil
	}
}

var setters = map[string]setter{
	"window_size":      intKey(func(c *Global) *int { return &c.WindowSize }, 0),
	"window_overlap":   intKey(func(c *Global) *int { return &c.WindowOverlap }, 0),
	"max_windows":      intKey(func(c *Global) *int { return &c.MaxWindows }, 1),
	"bundle_max_bytes": intKey(func(c *Global) *int { return &c.BundleMaxBytes }, 0),
	"concurrency":      intKey(func(c *Global) *int { return &c.Concurrency }, 1),
	"on_fetch_error": func(c *Global, val string) error {
		v := strings.ToLower(val)
		if v != OnFetchErrorAbort && v != OnFetchErrorSkip {
			return fmt.Errorf("invalid on_fetch_error: %s (use abort or skip)", val)
		}
		c.OnFetchError = v
		return nil
	},
	"doc_ids":   listKey(func(c *Global) *[]string { return &c.DocIDs }),
	"allowlist": listKey(func(c *Global) *[]string { return &c.Allowlist }),

	"api_key":       stringKey(func(c *Global) *string { return &c.APIKey }),
	"default_model": stringKey(func(c *Global) *string { return &c.DefaultModel }),
	"default_provider": func(c *Global, val string) error {
		switch strings.ToLower(val) {
		case "openrouter":
			c.DefaultProvider = "openrouter"
		case "ollama", "local":
			c.DefaultProvider = "ollama"
		default:
			return fmt.Errorf("invalid default_provider: %s (use openrouter or ollama)", val)
		}
		return nil
	},
	"max_tokens": intKey(func(c *Global) *int { return &c.MaxTokens }, 1),
	"temperature": func(c *Global, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid temperature %q (0..2)", val)
		}
		c.Temperature = f
		return nil
	},
	"reduce_title_with_model": boolKey(func(c *Global) *bool { return &c.ReduceTitleWithModel }),
	"models_catalog":          stringKey(func(c *Global) *string { return &c.ModelsCatalog }),

	"source_url_template": func(c *Global, val string) error {
		if !strings.Contains(val, "{id}") {
			return fmt.Errorf("source_url_template must contain {id}")
		}
		c.SourceURLTemplate = val
		return nil
	},
	"source_token": stringKey(func(c *Global) *string { return &c.SourceToken }),

	"cache_enabled": boolKey(func(c *Global) *bool { return &c.CacheEnabled }),
	"cache_dir":     stringKey(func(c *Global) *string { return &c.CacheDir }),
	"runs_dir":      stringKey(func(c *Global) *string { return &c.RunsDir }),
	"log_level": func(c *Global, val string) error {
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
			return nil
		}
		return fmt.Errorf("invalid log_level: %s (debug|info|warn|error)", val)
	},

	"http_timeout_sec":    intKey(func(c *Global) *int { return &c.HTTPTimeoutSec }, 1),
	"retry_max_attempts":  intKey(func(c *Global) *int { return &c.RetryMaxAttempts }, 1),
	"retry_base_delay_ms": intKey(func(c *Global) *int { return &c.RetryBaseDelayMs }, 0),
	"retry_max_delay_ms":  intKey(func(c *Global) *int { return &c.RetryMaxDelayMs }, 0),
	"ollama_host":         stringKey(func(c *Global) *string { return &c.OllamaHost }),
	"ollama_timeout_sec":  intKey(func(c *Global) *int { return &c.OllamaTimeoutSec }, 1),
}

// Set assigns one key from its string form, validating it.
func (c *Global) Set(key, val string) error {
	f, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown key: %s", key)
	}
	if err := f(c, val); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Keys lists every settable key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(setters))
	for k := range setters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
