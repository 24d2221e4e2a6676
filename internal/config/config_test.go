// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	mgr, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	cfg := mgr.Get()
	assert.Equal(t, "https://api.openai.com/v1", cfg.Upstream.BaseURL)
	assert.Equal(t, 0.7, cfg.Chat.Temperature)
	assert.Equal(t, 2000, cfg.Chat.MaxTokens)
	assert.Equal(t, 15, cfg.UI.RevealDelayMs)
	assert.Equal(t, 8787, cfg.Server.Port)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[chat]
model = "my-model"
temperature = 0.2
`), 0o644))

	mgr, err := Load(path)
	require.NoError(t, err)

	cfg := mgr.Get()
	assert.Equal(t, "my-model", cfg.Chat.Model)
	assert.Equal(t, 0.2, cfg.Chat.Temperature)
	// Untouched sections keep their defaults.
	assert.Equal(t, 2000, cfg.Chat.MaxTokens)
	assert.Equal(t, 8787, cfg.Server.Port)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is = not [ toml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[upstream]
api_key = "from-file"
`), 0o644))

	t.Setenv("QUILL_API_KEY", "from-env")
	mgr, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", mgr.Get().Upstream.APIKey)

	t.Setenv("QUILL_API_KEY", "")
	mgr, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", mgr.Get().Upstream.APIKey)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	mgr, err := Load(path)
	require.NoError(t, err)

	cfg := mgr.Get()
	cfg.Chat.Model = "saved-model"
	cfg.Chat.SystemPrompt = "be concise"
	require.NoError(t, mgr.Set(cfg))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-model", reloaded.Get().Chat.Model)
	assert.Equal(t, "be concise", reloaded.Get().Chat.SystemPrompt)
}

func TestParamsReflectsLiveSettings(t *testing.T) {
	mgr, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	p := mgr.Params()
	require.NotNil(t, p.Temperature)
	assert.Equal(t, 0.7, *p.Temperature)

	cfg := mgr.Get()
	cfg.Chat.Temperature = 0
	cfg.Chat.Model = "cold-model"
	require.NoError(t, mgr.Set(cfg))

	p = mgr.Params()
	assert.Equal(t, "cold-model", p.Model)
	require.NotNil(t, p.Temperature)
	assert.Equal(t, 0.0, *p.Temperature, "explicit zero temperature must survive")
}

func TestRevealDelayFloor(t *testing.T) {
	mgr, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	cfg := mgr.Get()
	cfg.UI.RevealDelayMs = -5
	require.NoError(t, mgr.Set(cfg))
	assert.Equal(t, 15*time.Millisecond, mgr.RevealDelay())

	cfg.UI.RevealDelayMs = 40
	require.NoError(t, mgr.Set(cfg))
	assert.Equal(t, 40*time.Millisecond, mgr.RevealDelay())
}

func TestWatcherReloadsExternalEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[chat]
model = "before"
`), 0o644))

	mgr, err := Load(path)
	require.NoError(t, err)

	reloaded := make(chan Config, 1)
	w, err := NewWatcher(mgr, 20*time.Millisecond, func(c Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)
	require.NoError(t, w.Watch())
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`
[chat]
model = "after"
`), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "after", cfg.Chat.Model)
		assert.Equal(t, "after", mgr.Get().Chat.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never reloaded")
	}
}
