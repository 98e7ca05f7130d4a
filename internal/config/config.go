// Package config loads server configuration from an optional YAML file,
// environment variables and command-line flags, in ascending precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	flag "github.com/spf13/pflag"
)

// envPrefix namespaces the environment variables read by Load, e.g.
// STUDYDECK_LISTEN or STUDYDECK_LOG_LEVEL.
const envPrefix = "STUDYDECK_"

// Config holds every runtime setting of the server.
type Config struct {
	Listen   string `koanf:"listen" validate:"required,hostname_port"`
	DBPath   string `koanf:"db" validate:"required"`
	ReposDir string `koanf:"repos-dir" validate:"required"`
	LogLevel string `koanf:"log-level" validate:"oneof=debug info warn error"`

	// Default study settings applied when a session starts without
	// explicit overrides.
	StrictSpelling  bool `koanf:"strict-spelling"`
	RetypeOnMistake bool `koanf:"retype-on-mistake"`

	// AddSource registers a deck source (local path or git URL) before
	// the server starts. SyncOnStart reconciles all sources at boot.
	AddSource   string `koanf:"add-source"`
	SyncOnStart bool   `koanf:"sync"`
}

// Load parses the given command-line arguments and merges them with the
// config file and environment. Flag values win over environment values,
// which win over the file.
func Load(args []string) (*Config, error) {
	f := flag.NewFlagSet("studydeck", flag.ContinueOnError)
	f.String("config", "", "Path to an optional YAML config file")
	f.String("listen", "localhost:8080", "Address for the HTTP server to listen on")
	f.String("db", "studydeck.db", "Path to the SQLite database file")
	f.String("repos-dir", "repos", "Directory where git deck sources are cloned")
	f.String("log-level", "info", "Log level: debug, info, warn or error")
	f.Bool("strict-spelling", false, "Require exact spelling on written answers")
	f.Bool("retype-on-mistake", false, "Require retyping the answer after a mistake")
	f.String("add-source", "", "Register a deck source (local path or git URL) and exit after sync")
	f.Bool("sync", false, "Reconcile all deck sources on startup")
	if err := f.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	k := koanf.New(".")

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
