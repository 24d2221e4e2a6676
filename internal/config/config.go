// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and persists quill's settings.
//
// Settings live in TOML at ~/.quill/config.toml, with built-in
// defaults for everything so a missing file is a working setup. The
// API key can additionally come from the QUILL_API_KEY environment
// variable, which always wins over the file so keys never have to be
// written to disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/quill-tui/internal/relay"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete quill configuration.
type Config struct {
	// Upstream is the completion endpoint settings.
	Upstream UpstreamConfig `toml:"upstream"`

	// Chat tunes each exchange.
	Chat ChatConfig `toml:"chat"`

	// UI tunes the terminal client.
	UI UIConfig `toml:"ui"`

	// Server tunes the relay HTTP server (`quill serve`).
	Server ServerConfig `toml:"server"`

	// StoragePath is the SQLite database location (empty = default
	// ~/.quill/quill.db).
	StoragePath string `toml:"storage_path"`
}

// UpstreamConfig points at an OpenAI-compatible completion endpoint.
type UpstreamConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string `toml:"base_url"`
	// APIKey authenticates against the upstream. Overridden by
	// QUILL_API_KEY when set.
	APIKey string `toml:"api_key"`
}

// ChatConfig tunes the completion request.
type ChatConfig struct {
	// Model is the default model name.
	Model string `toml:"model"`
	// Temperature is the sampling temperature.
	Temperature float64 `toml:"temperature"`
	// MaxTokens caps the reply length.
	MaxTokens int `toml:"max_tokens"`
	// SystemPrompt is prepended to every exchange when non-empty.
	SystemPrompt string `toml:"system_prompt"`
}

// UIConfig tunes the terminal client.
type UIConfig struct {
	// RevealDelayMs is the typewriter base delay in milliseconds.
	RevealDelayMs int `toml:"reveal_delay_ms"`
}

// ServerConfig tunes `quill serve`.
type ServerConfig struct {
	// Port is the listen port.
	Port int `toml:"port"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Chat: ChatConfig{
			Model:       "gpt-4o-mini",
			Temperature: relay.DefaultTemperature,
			MaxTokens:   relay.DefaultMaxTokens,
		},
		UI: UIConfig{
			RevealDelayMs: 15,
		},
		Server: ServerConfig{
			Port: 8787,
		},
	}
}

// Dir returns the quill configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".quill"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager holds the live configuration and serializes access to it.
// The watcher goroutine and the UI both read through it.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// Load reads the configuration at path, creating nothing. A missing
// file yields the defaults; a malformed file is an error rather than
// silently wrong settings.
func Load(path string) (*Manager, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	applyEnv(cfg)
	return &Manager{path: path, cfg: cfg}, nil
}

// applyEnv layers environment overrides on top of file values.
func applyEnv(cfg *Config) {
	if key := os.Getenv("QUILL_API_KEY"); key != "" {
		cfg.Upstream.APIKey = key
	}
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// Set replaces the configuration and persists it.
func (m *Manager) Set(cfg Config) error {
	m.mu.Lock()
	m.cfg = &cfg
	m.mu.Unlock()
	return m.Save()
}

// Save writes the current configuration to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := *m.cfg
	m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(m.path), ".config-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), m.path)
}

// Reload re-reads the file, keeping current values when the read
// fails. Used by the watcher after external edits.
func (m *Manager) Reload() error {
	fresh, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = fresh.cfg
	m.mu.Unlock()
	return nil
}

// Params assembles relay parameters from the current settings,
// consulted per exchange so edits apply immediately.
func (m *Manager) Params() relay.Params {
	m.mu.RLock()
	defer m.mu.RUnlock()

	temp := m.cfg.Chat.Temperature
	return relay.Params{
		Model:        m.cfg.Chat.Model,
		Temperature:  &temp,
		MaxTokens:    m.cfg.Chat.MaxTokens,
		SystemPrompt: m.cfg.Chat.SystemPrompt,
	}
}

// RevealDelay returns the typewriter base delay.
func (m *Manager) RevealDelay() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cfg.UI.RevealDelayMs <= 0 {
		return 15 * time.Millisecond
	}
	return time.Duration(m.cfg.UI.RevealDelayMs) * time.Millisecond
}
