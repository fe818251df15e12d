// chat-ui - a terminal chat client for OpenAI-compatible completion servers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/devkabir/chat-ui/internal/cli"
	"github.com/devkabir/chat-ui/internal/config"
	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/ui/chat"
	"github.com/devkabir/chat-ui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd, args := cli.Parse()
	if args.Err != nil {
		return cli.Report(args.Err, cmd, args)
	}

	// Commands that need no configuration.
	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return cli.ExitSuccess
	case cli.CmdVersion:
		if args.JSON {
			data := cli.VersionData{Version: cli.Version, GitCommit: cli.GitCommit, BuildDate: cli.BuildDate, GoVersion: runtime.Version()}
			return cli.Report(cli.NewJSONResponse("version", data).Print(), cmd, args)
		}
		cli.PrintVersion(os.Stdout)
		return cli.ExitSuccess
	}

	app, err := cli.Setup(cmd, args)
	if err != nil {
		return cli.Report(err, cmd, args)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch cmd {
	case cli.CmdTUI:
		err = runTUI(ctx, app, args)
	case cli.CmdAsk:
		err = cli.HandleAsk(ctx, app, args)
	case cli.CmdChat:
		err = cli.HandleChat(ctx, app, args)
	case cli.CmdModels:
		err = cli.HandleModels(ctx, app, args)
	case cli.CmdSearch:
		err = cli.HandleSearch(ctx, app, args)
	case cli.CmdHistory:
		err = cli.HandleHistory(ctx, app, args)
	case cli.CmdConfig:
		err = cli.HandleConfig(app, args)
	}
	if err != nil {
		app.Log.Debugw("command failed", "command", cmd.String(), "error", err)
	}
	return cli.Report(err, cmd, args)
}

// runTUI starts the full-screen chat.
func runTUI(ctx context.Context, app *cli.App, args cli.Args) error {
	cfg := app.Config
	log := app.Log

	var resumed *model.Conversation
	if args.Target != "" {
		conv, err := cli.LoadConversation(ctx, app, args.Target)
		if err != nil {
			return err
		}
		resumed = conv
	}

	opts := chat.Options{
		Backend:      app.Client,
		Config:       cfg,
		Searcher:     app.Searcher(),
		Theme:        styles.ForMode(cfg.UI.Theme),
		Logger:       log,
		Conversation: resumed,
		Context:      ctx,
	}

	store, err := app.OpenStore(ctx)
	switch {
	case err == nil:
		defer store.Close()
		if n, err := store.Prune(ctx, cfg.Storage.MaxConversations); err != nil {
			log.Warnw("pruning history failed", "error", err)
		} else if n > 0 {
			log.Infow("pruned old conversations", "count", n)
		}
		opts.Store = store
	case errors.Is(err, cli.ErrHistoryDisabled):
		log.Debugw("history disabled")
	default:
		log.Warnw("history unavailable", "error", err)
	}

	// Reload settings when the config file changes. Flag overrides from
	// this invocation are reapplied so they stay in effect.
	if err := config.EnsureConfigDir(); err != nil {
		log.Warnw("config directory unavailable", "error", err)
	}
	updates := make(chan *config.Config, 1)
	go func() {
		err := config.Watch(ctx, app.ConfigPath, func(next *config.Config) {
			if err := cli.ApplyFlags(next, args); err != nil {
				log.Warnw("ignoring reloaded config", "error", err)
				return
			}
			select {
			case updates <- next:
			default:
				// Drop the stale pending update in favor of this one.
				select {
				case <-updates:
				default:
				}
				updates <- next
			}
		}, log)
		if err != nil && ctx.Err() == nil {
			log.Warnw("config watcher stopped", "error", err)
		}
	}()
	opts.ConfigUpdates = updates

	p := tea.NewProgram(
		chat.New(opts),
		tea.WithAltScreen(), // Use alternate screen buffer
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running chat-ui: %w", err)
	}
	return nil
}
