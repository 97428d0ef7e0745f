// Package config loads the CLI configuration once at process start: the
// RELINT_* environment overrides and the optional YAML settings file at
// ~/.config/relint/config.yaml. Commands receive the loaded Config instead
// of reading the environment at call sites.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

const (
	// settingsFileName is the optional YAML settings file.
	settingsFileName = "config.yaml"
	// userConfigDir is the subdirectory under home for relint configuration.
	userConfigDir = ".config/relint"

	// DefaultLoginTimeout bounds how long an interactive login waits for the
	// browser to deliver a token.
	DefaultLoginTimeout = 5 * time.Minute
)

// Env holds the environment overrides consumed by the auth resolver. The
// token and server URL are only honored together; a partial pair triggers a
// warning and is ignored.
type Env struct {
	Token     string `env:"RELINT_TOKEN"`
	ServerURL string `env:"RELINT_SERVER_URL"`
}

// settingsFile mirrors the YAML settings file. Durations are strings in
// time.ParseDuration syntax.
type settingsFile struct {
	Login struct {
		Timeout        string `yaml:"timeout"`
		PortRangeStart int    `yaml:"portRangeStart"`
		PortRangeEnd   int    `yaml:"portRangeEnd"`
	} `yaml:"login"`
}

// Config is the fully resolved CLI configuration.
type Config struct {
	Env Env

	// LoginTimeout is how long to wait for the browser callback.
	LoginTimeout time.Duration

	// PortRangeStart and PortRangeEnd bound the callback port scan. Zero
	// values leave the loopback server's defaults in effect.
	PortRangeStart int
	PortRangeEnd   int
}

// Load reads the environment and the default settings file location.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, userConfigDir, settingsFileName))
}

// LoadFromPath reads the environment plus the settings file at path. A
// missing file yields the defaults; a malformed file is an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{LoginTimeout: DefaultLoginTimeout}

	if err := env.Parse(&cfg.Env); err != nil {
		return nil, fmt.Errorf("could not read environment: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var file settingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	if file.Login.Timeout != "" {
		timeout, err := time.ParseDuration(file.Login.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid login.timeout in %s: %w", path, err)
		}
		cfg.LoginTimeout = timeout
	}
	if file.Login.PortRangeStart > 0 {
		cfg.PortRangeStart = file.Login.PortRangeStart
	}
	if file.Login.PortRangeEnd > 0 {
		cfg.PortRangeEnd = file.Login.PortRangeEnd
	}
	return cfg, nil
}
