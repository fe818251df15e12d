// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the non-TUI commands of
// chat-ui.
//
// # Key Types
//
//   - Command: enumeration of the available commands
//   - Args: parsed global flags plus command-specific arguments
//   - App: loaded configuration, logger, completion client and output streams
//   - JSONResponse: envelope printed by every command under --json
//
// # Usage
//
//	cmd, args := cli.Parse()
//	app, err := cli.Setup(cmd, args)
//	if err != nil {
//	    os.Exit(cli.Report(err, cmd, args))
//	}
//	defer app.Close()
//
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(ctx, app, args)
//	// ...
//	}
//
// # Commands
//
//   - tui (default): full-screen chat, started by main
//   - ask: one question, streamed to stdout
//   - chat: line-oriented REPL with history
//   - models, search, history, config, version, help
//
// Errors are printed as "Error: ..." on stderr. Exit codes are 1 for
// failures, 2 for usage errors and 130 when a generation was cancelled.
package cli
