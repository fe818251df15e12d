// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Shared setup for every command: configuration, logging and the
// completion client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/devkabir/chat-ui/internal/config"
	"github.com/devkabir/chat-ui/internal/llm"
	"github.com/devkabir/chat-ui/internal/logging"
	"github.com/devkabir/chat-ui/internal/search"
	"github.com/devkabir/chat-ui/internal/storage"
)

// ErrHistoryDisabled is returned by OpenStore when storage.enabled is false.
var ErrHistoryDisabled = errors.New("conversation history is disabled (storage.enabled = false)")

// App bundles what the command handlers need.
type App struct {
	Config *config.Config
	// ConfigPath is the file the configuration came from, or where
	// "config set" will create it.
	ConfigPath string
	Log        *zap.SugaredLogger
	Client     *llm.Client

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// TTY reports whether Stdout is an interactive terminal.
	TTY bool
	// StdinTTY reports whether Stdin is an interactive terminal.
	StdinTTY bool

	searcher search.Searcher
	closeLog func() error
}

// Setup loads configuration, applies flag overrides and builds the logger
// and client. The TUI never logs to stderr since it owns the terminal.
func Setup(cmd Command, args Args) (*App, error) {
	path, err := resolveConfigPath(args.ConfigPath)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := ApplyFlags(cfg, args); err != nil {
		return nil, err
	}

	logPath, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if args.Verbose {
		level = "debug"
	}
	log, closeLog, err := logging.New(logging.Options{
		Level:     level,
		Path:      logPath,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		MaxFiles:  5,
		Stderr:    logging.StderrIf(args.Verbose && cmd != CmdTUI),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	app := NewApp(cfg, log)
	app.ConfigPath = path
	app.closeLog = closeLog
	log.Debugw("starting", "command", cmd.String(), "version", Version,
		"base_url", cfg.Server.BaseURL, "model", cfg.Chat.DefaultModel)
	return app, nil
}

// NewApp builds an App around an already loaded configuration, writing to
// the process's standard streams.
func NewApp(cfg *config.Config, log *zap.SugaredLogger) *App {
	log = logging.Or(log)
	client := llm.NewClient(cfg.Server.BaseURL).
		WithAPIKey(cfg.Server.APIKey).
		WithTimeout(cfg.Server.RequestTimeout()).
		WithUserAgent("chat-ui/" + Version).
		WithLogger(log)
	return &App{
		Config:   cfg,
		Log:      log,
		Client:   client,
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		TTY:      IsStdoutTTY(),
		StdinTTY: IsTTY(),
	}
}

// ApplyFlags overrides configuration with global flags and re-validates.
func ApplyFlags(cfg *config.Config, args Args) error {
	if args.Model != "" {
		cfg.Chat.DefaultModel = args.Model
	}
	if args.TemperatureSet {
		cfg.Chat.Temperature = args.Temperature
	}
	if args.URL != "" {
		cfg.Server.BaseURL = args.URL
	}
	if args.NoStream {
		cfg.Chat.Stream = false
	}
	if args.Search {
		cfg.Search.Enabled = true
	}
	if args.NoSearch {
		cfg.Search.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return NewUsageError(err.Error())
	}
	return nil
}

func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	if jsonPath, err := config.ConfigPathJSON(); err == nil {
		if _, err := os.Stat(jsonPath); err == nil {
			return jsonPath, nil
		}
	}
	return tomlPath, nil
}

// Searcher returns the configured web searcher, built on first use.
func (a *App) Searcher() search.Searcher {
	if a.searcher == nil {
		a.searcher = search.New(a.Config.Search.Provider, a.Config.Search.RequestsPerMinute, a.Log)
	}
	return a.searcher
}

// SetSearcher replaces the searcher.
func (a *App) SetSearcher(s search.Searcher) {
	a.searcher = s
}

// OpenStore opens the history database. Callers must Close it.
func (a *App) OpenStore(ctx context.Context) (*storage.Store, error) {
	if !a.Config.Storage.Enabled {
		return nil, ErrHistoryDisabled
	}
	path, err := a.Config.DatabasePath()
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, path, a.Log)
}

// Close flushes the log.
func (a *App) Close() error {
	if a.closeLog == nil {
		return nil
	}
	return a.closeLog()
}
