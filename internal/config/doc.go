// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chat-ui.
//
// Supports TOML and JSON configuration files, sensible defaults, environment
// variable overrides, validation and live reload.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command-line flags (applied by the caller)
//   - Environment variables (CHATUI_*)
//   - ~/.chat-ui/config.toml
//   - ~/.chat-ui/config.json
//   - Built-in defaults
//
// CHATUI_HOME relocates the ~/.chat-ui directory.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := llm.NewClient(cfg.Server.BaseURL)
//
// Watch for edits while the TUI is running:
//
//	go config.Watch(ctx, path, func(cfg *config.Config) { ... }, logger)
package config
