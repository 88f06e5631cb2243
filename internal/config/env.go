package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when no --env_file is given.
const DefaultEnvFile = ".env"

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing default file is
// not an error; a missing explicitly requested file is.
func LoadEnvFile(path string, explicit bool) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Options selects the sources Resolve reads.
type Options struct {
	// ConfigPath is an explicit config file; empty falls back to
	// FILESEARCH_CONFIG and then ./filesearch.yaml when present.
	ConfigPath string
	// EnvFile is an explicit .env file; empty means ./.env when present.
	EnvFile string
}

// Resolve builds the effective configuration: .env file, then config file,
// then environment overlay, then defaults and validation. Flags are applied by
// the caller afterwards.
func Resolve(opts Options) (*Config, error) {
	if err := LoadEnvFile(opts.EnvFile, opts.EnvFile != ""); err != nil {
		return nil, err
	}

	path, explicit := opts.ConfigPath, opts.ConfigPath != ""
	if path == "" {
		if env := strings.TrimSpace(os.Getenv(EnvConfig)); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultConfigFile
		}
	}

	var cfg *Config
	if _, err := os.Stat(path); err == nil {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = decodeRawConfig(raw); err != nil {
			return nil, err
		}
	} else if explicit {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	} else {
		cfg = &Config{}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
