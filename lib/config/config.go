// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package config assembles the service configuration. The deployment
// surface is environment variables (DOCFORGE_*), matching how the
// service is containerized; an optional YAML file referenced by
// DOCFORGE_CONFIG carries the settings operators tune less often.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environments. Production freezes templates at startup and refuses to
// run without filesystem isolation.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the resolved service configuration.
type Config struct {
	// StoreURL is the external content store endpoint. Required.
	StoreURL string

	// StoreToken is the bearer token for the store. Required.
	StoreToken string

	// Port is the intake listener port.
	Port int

	// Environment is development or production.
	Environment string

	// TempRoot holds per-request working directories.
	TempRoot string

	// JournalDir holds the outcome journal. Empty disables journaling.
	JournalDir string

	// ProfilePath is an optional sandbox profile YAML file.
	ProfilePath string

	// AllowlistPath is an optional capability policy JSONC file.
	AllowlistPath string

	// TemplateManifestPath is an optional template manifest file.
	TemplateManifestPath string

	// MaxConcurrent bounds simultaneously executing requests.
	MaxConcurrent int

	// QueueWait bounds admission waiting before refusal.
	QueueWait time.Duration
}

// fileConfig is the YAML file shape. Durations are strings ("30s"),
// matching how operators write them.
type fileConfig struct {
	StoreURL             string `yaml:"store_url"`
	StoreToken           string `yaml:"store_token"`
	Port                 int    `yaml:"port"`
	Environment          string `yaml:"environment"`
	TempRoot             string `yaml:"temp_root"`
	JournalDir           string `yaml:"journal_dir"`
	ProfilePath          string `yaml:"profile_path"`
	AllowlistPath        string `yaml:"allowlist_path"`
	TemplateManifestPath string `yaml:"template_manifest_path"`
	MaxConcurrent        int    `yaml:"max_concurrent"`
	QueueWait            string `yaml:"queue_wait"`
}

// Load resolves the configuration: defaults, then the optional YAML
// file named by DOCFORGE_CONFIG, then DOCFORGE_* environment variables,
// most specific last.
func Load() (*Config, error) {
	config := &Config{
		Port:          8000,
		Environment:   EnvDevelopment,
		TempRoot:      filepath.Join(os.TempDir(), "docforge"),
		MaxConcurrent: 4,
		QueueWait:     10 * time.Second,
	}

	if path := os.Getenv("DOCFORGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		if err := config.applyFile(file); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("DOCFORGE_STORE_URL"); v != "" {
		config.StoreURL = v
	}
	if v := os.Getenv("DOCFORGE_STORE_TOKEN"); v != "" {
		config.StoreToken = v
	}
	if v := os.Getenv("DOCFORGE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DOCFORGE_PORT: %w", err)
		}
		config.Port = port
	}
	if v := os.Getenv("DOCFORGE_ENV"); v != "" {
		config.Environment = v
	}
	if v := os.Getenv("DOCFORGE_TEMP_ROOT"); v != "" {
		config.TempRoot = v
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyFile layers the YAML file's set fields over the defaults.
func (c *Config) applyFile(file fileConfig) error {
	if file.StoreURL != "" {
		c.StoreURL = file.StoreURL
	}
	if file.StoreToken != "" {
		c.StoreToken = file.StoreToken
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.Environment != "" {
		c.Environment = file.Environment
	}
	if file.TempRoot != "" {
		c.TempRoot = file.TempRoot
	}
	if file.JournalDir != "" {
		c.JournalDir = file.JournalDir
	}
	if file.ProfilePath != "" {
		c.ProfilePath = file.ProfilePath
	}
	if file.AllowlistPath != "" {
		c.AllowlistPath = file.AllowlistPath
	}
	if file.TemplateManifestPath != "" {
		c.TemplateManifestPath = file.TemplateManifestPath
	}
	if file.MaxConcurrent != 0 {
		c.MaxConcurrent = file.MaxConcurrent
	}
	if file.QueueWait != "" {
		wait, err := time.ParseDuration(file.QueueWait)
		if err != nil {
			return fmt.Errorf("queue_wait: %w", err)
		}
		c.QueueWait = wait
	}
	return nil
}

// Validate checks the resolved configuration, collecting every problem
// so an operator fixes one deploy, not one error at a time.
func (c *Config) Validate() error {
	var errs []error

	if c.StoreURL == "" {
		errs = append(errs, fmt.Errorf("store URL is required (DOCFORGE_STORE_URL)"))
	} else if parsed, err := url.Parse(c.StoreURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("store URL %q is not an absolute URL", c.StoreURL))
	}
	if c.StoreToken == "" {
		errs = append(errs, fmt.Errorf("store token is required (DOCFORGE_STORE_TOKEN)"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("environment must be development or production, got %q", c.Environment))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrent must be positive"))
	}
	if c.QueueWait <= 0 {
		errs = append(errs, fmt.Errorf("queue_wait must be positive"))
	}

	return errors.Join(errs...)
}

// Production reports whether the production hardening applies.
func (c *Config) Production() bool {
	return c.Environment == EnvProduction
}
