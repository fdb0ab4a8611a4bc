// Package config handles loading, saving, and resolving the labmirror
// configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/skaphos/labmirror/internal/match"
	"github.com/skaphos/labmirror/internal/pathname"
)

const (
	// LocalConfigFilename is the per-directory labmirror config file.
	LocalConfigFilename = ".labmirror.yaml"
	// ConfigAPIVersion is the current config schema apiVersion.
	ConfigAPIVersion = "skaphos.io/labmirror/v1beta1"
	// ConfigKind is the current config schema kind.
	ConfigKind = "LabMirrorConfig"
	// TokenEnv overrides the token stored in the config file, so the file
	// can be committed without credentials.
	TokenEnv = "LABMIRROR_TOKEN"
	// ConfigEnv points at an alternate config file or directory.
	ConfigEnv = "LABMIRROR_CONFIG"
)

// Cleanup configures the pattern purge pipeline.
type Cleanup struct {
	Enabled       bool     `yaml:"enabled"`
	DryRun        bool     `yaml:"dry_run"`
	AutoCommit    bool     `yaml:"auto_commit"`
	History       bool     `yaml:"history"`
	Patterns      []string `yaml:"patterns"`
	KeepPatterns  []string `yaml:"keep_patterns,omitempty"`
	CommitMessage string   `yaml:"commit_message"`
}

// Config represents the labmirror configuration.
type Config struct {
	APIVersion          string  `yaml:"apiVersion"`
	Kind                string  `yaml:"kind"`
	HostURL             string  `yaml:"host_url"`
	Token               string  `yaml:"token,omitempty"`
	DefaultDestination  string  `yaml:"default_destination,omitempty"`
	CloneTimeoutSeconds int     `yaml:"clone_timeout_seconds"`
	APITimeoutSeconds   int     `yaml:"api_timeout_seconds"`
	MaxRetries          int     `yaml:"max_retries"`
	RetryDelaySeconds   int     `yaml:"retry_delay_seconds"`
	ConcurrentClones    int     `yaml:"concurrent_clones"`
	SkipExisting        bool    `yaml:"skip_existing"`
	UseSSH              bool    `yaml:"use_ssh"`
	ShortPaths          bool    `yaml:"short_paths"`
	MaxPathLength       int     `yaml:"max_path_length"`
	Cleanup             Cleanup `yaml:"cleanup"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	return Config{
		APIVersion:          ConfigAPIVersion,
		Kind:                ConfigKind,
		HostURL:             "https://gitlab.com",
		CloneTimeoutSeconds: 300,
		APITimeoutSeconds:   30,
		MaxRetries:          3,
		RetryDelaySeconds:   1,
		ConcurrentClones:    1,
		MaxPathLength:       pathname.DefaultMaxLength,
		Cleanup: Cleanup{
			Patterns:      match.DefaultRemovePatterns(),
			CommitMessage: "chore: cleanup unnecessary files",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory path.
// It checks, in order: the override parameter, LABMIRROR_CONFIG env var,
// and finally os.UserConfigDir()/labmirror.
func ConfigDir(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return filepath.Dir(override), nil
		}
		return override, nil
	}

	if env := os.Getenv(ConfigEnv); env != "" {
		if isConfigFilePath(env) {
			return filepath.Dir(env), nil
		}
		return env, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "labmirror"), nil
}

// ConfigPath resolves the config file path from override/env/defaults.
func ConfigPath(override string) (string, error) {
	if override != "" {
		if isConfigFilePath(override) {
			return override, nil
		}
		return filepath.Join(override, "config.yaml"), nil
	}

	if env := os.Getenv(ConfigEnv); env != "" {
		if isConfigFilePath(env) {
			return env, nil
		}
		return filepath.Join(env, "config.yaml"), nil
	}

	dir, err := ConfigDir("")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// InitConfigPath resolves where "labmirror init" should write config.
// Order: explicit override, LABMIRROR_CONFIG, then local dotfile in cwd.
func InitConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(ConfigEnv) != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(cwd, LocalConfigFilename), nil
}

// ResolveConfigPath resolves config for runtime commands.
// Order: explicit override, LABMIRROR_CONFIG, nearest local dotfile in
// cwd/parents, then global platform config path.
func ResolveConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(ConfigEnv) != "" {
		return ConfigPath(override)
	}

	if strings.TrimSpace(cwd) == "" {
		var err error
		cwd, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}

	localPath, err := FindNearestConfigPath(cwd)
	if err != nil {
		return "", err
	}
	if localPath != "" {
		return localPath, nil
	}

	return ConfigPath("")
}

// FindNearestConfigPath searches cwd and each parent directory for
// .labmirror.yaml. It returns an empty string when no local config file
// is found.
func FindNearestConfigPath(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if err != nil && !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads the config file from the given path. Missing keys keep their
// defaults; zeroed timing knobs are backfilled so an edited file cannot
// disable timeouts by accident.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigGVK(&cfg)
	if err := validateConfigGVK(&cfg); err != nil {
		return nil, err
	}

	defaults := DefaultConfig()
	if cfg.CloneTimeoutSeconds <= 0 {
		cfg.CloneTimeoutSeconds = defaults.CloneTimeoutSeconds
	}
	if cfg.APITimeoutSeconds <= 0 {
		cfg.APITimeoutSeconds = defaults.APITimeoutSeconds
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryDelaySeconds <= 0 {
		cfg.RetryDelaySeconds = defaults.RetryDelaySeconds
	}
	if cfg.ConcurrentClones <= 0 {
		cfg.ConcurrentClones = defaults.ConcurrentClones
	}
	if cfg.MaxPathLength <= 0 {
		cfg.MaxPathLength = defaults.MaxPathLength
	}
	if strings.TrimSpace(cfg.Cleanup.CommitMessage) == "" {
		cfg.Cleanup.CommitMessage = defaults.Cleanup.CommitMessage
	}

	return &cfg, nil
}

// Save writes the config to the given path.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	applyConfigGVK(cfg)
	if err := validateConfigGVK(cfg); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ResolveToken returns the API token, preferring the environment over the
// config file.
func (c *Config) ResolveToken() string {
	if env := os.Getenv(TokenEnv); env != "" {
		return env
	}
	return c.Token
}

// CloneTimeout is the per-repository git operation budget.
func (c *Config) CloneTimeout() time.Duration {
	return time.Duration(c.CloneTimeoutSeconds) * time.Second
}

// APITimeout bounds a single hosting-API request.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// RetryDelay is the base wait between retries of transient failures.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func isConfigFilePath(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, "config.yaml") || strings.HasSuffix(lower, "config.yml") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyConfigGVK(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = ConfigAPIVersion
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		cfg.Kind = ConfigKind
	}
}

func validateConfigGVK(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.APIVersion != ConfigAPIVersion {
		return fmt.Errorf("unsupported config apiVersion %q (expected %q)", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return fmt.Errorf("unsupported config kind %q (expected %q)", cfg.Kind, ConfigKind)
	}
	return nil
}
