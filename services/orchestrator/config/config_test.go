// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "12310", cfg.Port)
	assert.Equal(t, "ollama", cfg.LLMBackend)
	assert.Equal(t, 60, cfg.ConfirmMaxTicks)
	assert.Equal(t, time.Second, cfg.ConfirmTickInterval)
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\nllm_backend: openai\n"), 0o600))
	t.Setenv("ASKDB_CONFIG_FILE", path)
	t.Setenv("ASKDB_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	// env beats file, file beats default
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "openai", cfg.LLMBackend)
}

func TestLoad_InvalidTickSettingsIgnored(t *testing.T) {
	t.Setenv("ASKDB_CONFIRM_MAX_TICKS", "not-a-number")
	t.Setenv("ASKDB_CONFIRM_TICK_INTERVAL", "-5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.ConfirmMaxTicks)
	assert.Equal(t, time.Second, cfg.ConfirmTickInterval)
}
