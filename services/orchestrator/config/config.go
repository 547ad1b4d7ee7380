// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads orchestrator configuration.
//
// Configuration is environment-first: every knob has an env var and a
// sensible default. An optional YAML file (ASKDB_CONFIG_FILE) can override
// the defaults before env vars are applied, so the precedence is
// defaults < file < environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port"`

	// LLMBackend selects the text-completion backend: "ollama" or "openai".
	LLMBackend string `yaml:"llm_backend"`

	// WeaviateURL is the long-term memory store. Empty runs the service in
	// lightweight mode: session transcripts only, no semantic recall.
	WeaviateURL string `yaml:"weaviate_url"`

	// EmbeddingModel is the Ollama model used to vectorize memories.
	EmbeddingModel string `yaml:"embedding_model"`

	// BadgerPath is the directory for the embedded checkpoint/transcript
	// store. Empty uses an in-memory database (testing).
	BadgerPath string `yaml:"badger_path"`

	// SQLiteDSN is the relational database queries run against.
	SQLiteDSN string `yaml:"sqlite_dsn"`

	// ConfirmMaxTicks bounds the confirmation wait: the controller polls
	// once per tick for a human decision before timing out the turn.
	ConfirmMaxTicks int `yaml:"confirm_max_ticks"`

	// ConfirmTickInterval is the poll interval for the confirmation wait.
	ConfirmTickInterval time.Duration `yaml:"confirm_tick_interval"`
}

func defaults() Config {
	return Config{
		Port:                "12310",
		LLMBackend:          "ollama",
		EmbeddingModel:      "nomic-embed-text",
		SQLiteDSN:           "file:askdb.db",
		ConfirmMaxTicks:     60,
		ConfirmTickInterval: time.Second,
	}
}

// Load builds the effective configuration from defaults, the optional YAML
// file named by ASKDB_CONFIG_FILE, and the environment, in that order.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("ASKDB_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		slog.Info("Loaded configuration file", "path", path)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ASKDB_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LLM_BACKEND_TYPE"); v != "" {
		cfg.LLMBackend = v
	}
	if v := os.Getenv("WEAVIATE_SERVICE_URL"); v != "" {
		cfg.WeaviateURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL_NAME"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("ASKDB_BADGER_PATH"); v != "" {
		cfg.BadgerPath = v
	}
	if v := os.Getenv("ASKDB_SQLITE_DSN"); v != "" {
		cfg.SQLiteDSN = v
	}
	if v := os.Getenv("ASKDB_CONFIRM_MAX_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ConfirmMaxTicks = n
		} else {
			slog.Warn("Ignoring invalid ASKDB_CONFIRM_MAX_TICKS", "value", v)
		}
	}
	if v := os.Getenv("ASKDB_CONFIRM_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ConfirmTickInterval = d
		} else {
			slog.Warn("Ignoring invalid ASKDB_CONFIRM_TICK_INTERVAL", "value", v)
		}
	}
}
