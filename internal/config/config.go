// Package config implements spec SPEC_FULL.md §A.3 (Configuration):
// `spf13/viper` layers env vars > an optional `howth.config.jsonc` file >
// built-in defaults, with `HOWTH_IPC_ENDPOINT` and `HOWTH_NPM_REGISTRY` as
// the only environment variables read (spec §6 "Environment variables").
// Command-line flags are not bound here. Grounded on the teacher's
// internal/config.ParseAndValidate precedence model (flags > env > config
// > default), generalized from turborepo's token/team-id config to this
// spec's IPC/registry/build settings.
package config

import (
	"bytes"
	"fmt"

	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/spf13/viper"
)

const (
	// EnvIPCEndpoint overrides the default daemon socket path (spec §6).
	EnvIPCEndpoint = "HOWTH_IPC_ENDPOINT"
	// EnvNpmRegistry overrides the default npm registry URL (spec §6).
	EnvNpmRegistry = "HOWTH_NPM_REGISTRY"

	defaultRegistry    = "https://registry.npmjs.org"
	defaultMaxParallel = 4
	defaultIdleTimeout = "4h"
)

// Config holds every setting that isn't purely a per-invocation CLI flag.
type Config struct {
	IPCEndpoint string `mapstructure:"ipc_endpoint"`
	NpmRegistry string `mapstructure:"npm_registry"`
	MaxParallel int    `mapstructure:"max_parallel"`
	IdleTimeout string `mapstructure:"idle_timeout"`
	Channel     string `mapstructure:"channel"`
}

// Load builds a Config for repoRoot: defaults, then an optional
// howth.config.jsonc in repoRoot (comments stripped via jsonc before
// viper parses it as JSON, since encoding/json itself rejects comments),
// then the HOWTH_IPC_ENDPOINT and HOWTH_NPM_REGISTRY environment
// variables, in increasing precedence.
func Load(repoRoot string, channel string) (*Config, error) {
	v := viper.New()
	v.SetDefault("ipc_endpoint", defaultSocketPath(channel))
	v.SetDefault("npm_registry", defaultRegistry)
	v.SetDefault("max_parallel", defaultMaxParallel)
	v.SetDefault("idle_timeout", defaultIdleTimeout)
	v.SetDefault("channel", channel)

	if raw, ok := readConfigFile(repoRoot); ok {
		cleaned := jsonc.ToJSON(raw)
		v.SetConfigType("json")
		if err := v.MergeConfig(bytes.NewReader(cleaned)); err != nil {
			return nil, fmt.Errorf("config: parsing howth.config.jsonc: %w", err)
		}
	}

	if err := v.BindEnv("ipc_endpoint", EnvIPCEndpoint); err != nil {
		return nil, err
	}
	if err := v.BindEnv("npm_registry", EnvNpmRegistry); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.MaxParallel <= 0 || cfg.MaxParallel > 64 {
		cfg.MaxParallel = defaultMaxParallel
	}
	return &cfg, nil
}
