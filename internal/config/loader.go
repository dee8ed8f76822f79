package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "BCI_"
	envFileKey = "BCI_CONFIG"
	envOpenAI  = "OPENAI_API_KEY"
	envNestKey = "__"
	koanfDelim = "."
)

// Load builds a Config by layering defaults, an optional file and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. YAML file named by BCI_CONFIG
//  3. env vars with prefix BCI_; a double underscore descends one level,
//     e.g. BCI_P300__THRESHOLD -> p300.threshold
//
// When no chat key is configured, OPENAI_API_KEY is used.
func Load(ctx context.Context) (*Config, error) {
	cfg := New(ctx)
	k := koanf.New(koanfDelim)

	if path := os.Getenv(envFileKey); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(envPrefix, koanfDelim, envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	// A configured menu replaces the default tree instead of merging into it.
	if k.Exists("menu") {
		cfg.Menu = nil
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = os.Getenv(envOpenAI)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps BCI_MI__MAX_ATTEMPTS to mi.max_attempts.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, envNestKey, koanfDelim)
}
