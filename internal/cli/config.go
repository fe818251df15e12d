// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   View and modify configuration
// Aliases: cfg
//
// Subcommands:
//   show (default)      Display the effective configuration (secrets redacted)
//   get <key>           Display one value
//   set <key> <value>   Set a value in the config file
//   keys                List every key
//   path                Show the config file path
//   reset --confirm     Write the default configuration
//
// Examples:
//   chat-ui config set server.base_url http://localhost:11434
//   chat-ui config set chat.default_model qwen2.5-7b-instruct
//   chat-ui config set search.enabled false
//   chat-ui config get chat.temperature --json
//
// "set" edits the file itself: environment overrides and flags are not
// written back.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/devkabir/chat-ui/internal/config"
)

// ConfigValue is the --json payload of get and set.
type ConfigValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
	Path  string      `json:"path,omitempty"`
}

// HandleConfig runs the config command.
func HandleConfig(app *App, args Args) error {
	var err error
	switch args.Subcommand {
	case "show", "":
		err = configShow(app, args)
	case "get":
		err = configGet(app, args)
	case "set":
		err = configSet(app, args)
	case "keys":
		err = configKeys(app, args)
	case "path":
		err = configPath(app, args)
	case "reset":
		err = configReset(app, args)
	default:
		return NewUsageError(fmt.Sprintf("unknown config subcommand %q (show, get, set, keys, path, reset)", args.Subcommand))
	}
	return NewCommandError("config", args.Subcommand, err)
}

func configShow(app *App, args Args) error {
	safe := app.Config.Redacted()
	if args.JSON {
		return NewJSONResponse("config", safe).PrintTo(app.Stdout)
	}
	fmt.Fprintf(app.Stdout, "# %s\n", app.ConfigPath)
	return toml.NewEncoder(app.Stdout).Encode(safe)
}

func configGet(app *App, args Args) error {
	if args.ConfigKey == "" {
		return NewUsageError("config get needs a key, e.g. chat.temperature (see 'chat-ui config keys')")
	}
	value, err := app.Config.Redacted().Get(args.ConfigKey)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config", ConfigValue{Key: args.ConfigKey, Value: value}).PrintTo(app.Stdout)
	}
	fmt.Fprintln(app.Stdout, value)
	return nil
}

func configSet(app *App, args Args) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return NewUsageError("config set needs a key and a value, e.g. chat-ui config set chat.temperature 0.2")
	}

	cfg, err := loadConfigFile(app.ConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := saveConfigFile(cfg, app.ConfigPath); err != nil {
		return err
	}

	value, _ := cfg.Redacted().Get(args.ConfigKey)
	if args.JSON {
		return NewJSONResponse("config", ConfigValue{Key: args.ConfigKey, Value: value, Path: app.ConfigPath}).PrintTo(app.Stdout)
	}
	if !args.Quiet {
		fmt.Fprintf(app.Stdout, "%s = %v\n", args.ConfigKey, value)
	}
	return nil
}

func configKeys(app *App, args Args) error {
	keys := config.GetAllKeys()
	if args.JSON {
		return NewJSONResponse("config", keys).PrintTo(app.Stdout)
	}
	fmt.Fprintln(app.Stdout, strings.Join(keys, "\n"))
	return nil
}

func configPath(app *App, args Args) error {
	if args.JSON {
		return NewJSONResponse("config", map[string]string{"path": app.ConfigPath}).PrintTo(app.Stdout)
	}
	fmt.Fprintln(app.Stdout, app.ConfigPath)
	return nil
}

func configReset(app *App, args Args) error {
	if !args.Confirm {
		return NewUsageError("config reset overwrites " + app.ConfigPath + "; add --confirm to proceed")
	}
	if err := saveConfigFile(config.Default(), app.ConfigPath); err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Fprintf(app.Stdout, "Wrote default configuration to %s\n", app.ConfigPath)
	}
	return nil
}

// loadConfigFile reads path without environment overrides; a missing file
// yields the defaults.
func loadConfigFile(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if isJSONPath(path) {
		return cfg, config.LoadJSON(cfg, path)
	}
	return cfg, config.LoadTOML(cfg, path)
}

func saveConfigFile(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if isJSONPath(path) {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

func isJSONPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".json")
}
