// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoaderOptions configures Load's search behavior.
type LoaderOptions struct {
	// ConfigDir is the directory searched for an environment-named or
	// default config file.
	ConfigDir string
	// Environment overrides GetEnvironment's automatic detection.
	Environment string
}

// DefaultLoaderOptions returns Load's default search options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{ConfigDir: "config"}
}

// Load resolves the active environment, tries "<env>.yaml" then
// "default.yaml" under ConfigDir, and falls back to Default() if
// neither exists. Always returns a fully-defaulted, validated Config.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	candidates := []string{
		filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env)),
		filepath.Join(options.ConfigDir, "default.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		if cfg.Environment == "" {
			cfg.Environment = env
		}
		return cfg, nil
	}

	cfg := Default()
	cfg.Environment = env
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad calls Load and panics on error, for use in program
// initialization where there is no reasonable recovery.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("config: load failed: %v", err))
	}
	return cfg
}
