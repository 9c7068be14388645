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

// Environment keys.
const (
	EnvPrefix     = "SMILE_"
	EnvConfig     = "SMILE_CONFIG"
	EnvStubPrefix = "SMILE_STUB_"
	EnvStubConfig = "SMILE_STUB_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SMILE_CONFIG is set
//  3. env (prefix SMILE_, "__" separates nesting: SMILE_DETECTOR__BASE_URL)
func Load(_ context.Context) (*Config, error) {
	cfg := *New()
	if err := load(EnvPrefix, EnvConfig, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStub builds a StubConfig the same way using SMILE_STUB_CONFIG and
// SMILE_STUB_* variables.
func LoadStub(_ context.Context) (*StubConfig, error) {
	cfg := *NewStub()
	if err := load(EnvStubPrefix, EnvStubConfig, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(prefix, fileKey string, out any) error {
	k := koanf.New(".")

	if path := os.Getenv(fileKey); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(prefix, ".", func(s string) string {
		if s == fileKey {
			return ""
		}
		s = strings.ToLower(strings.TrimPrefix(s, prefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	if err := k.UnmarshalWithConf("", out, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	return nil
}
