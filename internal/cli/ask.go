// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask
// Short:   Ask a single question
//
// Examples:
//   chat-ui ask "What is a channel?"      Stream the reply to stdout
//   chat-ui ask --search "Go 1.24 news"   Ground the reply with a web search
//   git diff | chat-ui ask -              Read the question from stdin
//   chat-ui ask --json "Hi"               Print the reply as JSON
//
// On a terminal with ui.render_markdown enabled the reply is rendered as
// markdown once complete; otherwise fragments are written as they arrive.
// Ctrl+C stops the generation, keeps what was received and exits with 130.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/devkabir/chat-ui/internal/render"
	"github.com/devkabir/chat-ui/internal/search"
)

// maxStdinQuestion bounds a question read from stdin.
const maxStdinQuestion = 1 << 20

// AskData is the --json payload of ask.
type AskData struct {
	Model       string          `json:"model"`
	Query       string          `json:"query"`
	Response    string          `json:"response"`
	Interrupted bool            `json:"interrupted,omitempty"`
	Sources     []search.Result `json:"sources,omitempty"`
	Stats       *AskStats       `json:"stats,omitempty"`
}

// AskStats is generation timing in --json output.
type AskStats struct {
	TTFTMs             int64   `json:"ttft_ms"`
	DurationMs         int64   `json:"duration_ms"`
	Fragments          int     `json:"fragments"`
	FragmentsPerSecond float64 `json:"fragments_per_second"`
}

// HandleAsk runs the ask command.
func HandleAsk(ctx context.Context, app *App, args Args) error {
	query, err := askQuery(app, args)
	if err != nil {
		return err
	}
	cfg := app.Config

	conv := newConversation(cfg)
	conv.AddUserMessage(query)

	renderMarkdown := app.TTY && cfg.UI.RenderMarkdown && !args.JSON
	var live io.Writer
	if !args.JSON && !renderMarkdown {
		live = app.Stdout
	}

	t := turn{
		app:       app,
		out:       live,
		search:    cfg.Search.Enabled,
		interrupt: true,
		onGrounded: func(resp search.Response) {
			if !args.Quiet && !args.JSON {
				fmt.Fprintln(app.Stderr, DimStyle.Render(fmt.Sprintf("[searched the web: %d results]", len(resp.Results))))
			}
		},
	}
	res, err := t.run(ctx, conv)

	if args.JSON {
		if err != nil {
			return err
		}
		data := AskData{
			Model:    conv.Model,
			Query:    query,
			Response: res.Reply,
			Sources:  res.Sources,
		}
		if s := res.Stats; s != nil {
			data.Stats = &AskStats{
				TTFTMs:             s.TTFT.Milliseconds(),
				DurationMs:         s.TotalDuration.Milliseconds(),
				Fragments:          s.FragmentCount,
				FragmentsPerSecond: s.FragmentsPerSecond,
			}
		}
		return NewJSONResponse("ask", data).PrintTo(app.Stdout)
	}

	switch {
	case renderMarkdown && res.Reply != "":
		r := render.New(cfg.UI.Theme, GetTerminalWidth(), true)
		fmt.Fprintln(app.Stdout, r.Render(res.Reply))
	case res.Reply != "" && !strings.HasSuffix(res.Reply, "\n"):
		fmt.Fprintln(app.Stdout)
	}

	if err != nil {
		if GetExitCode(err) == ExitCancelled && !args.Quiet {
			fmt.Fprintln(app.Stderr, WarningStyle.Render("[Cancelled]"))
		}
		return err
	}
	if args.Verbose && res.Stats != nil {
		fmt.Fprintln(app.Stderr, DimStyle.Render(res.Stats.Format()))
	}
	return nil
}

// askQuery returns the question from the arguments, or from stdin when the
// argument is "-" or missing and stdin is not a terminal.
func askQuery(app *App, args Args) (string, error) {
	query := args.Query
	if query == "-" || (query == "" && !app.StdinTTY) {
		data, err := io.ReadAll(io.LimitReader(app.Stdin, maxStdinQuestion))
		if err != nil {
			return "", fmt.Errorf("read question from stdin: %w", err)
		}
		query = strings.TrimSpace(string(data))
	}
	if query == "" {
		return "", NewUsageError(`ask needs a question, e.g. chat-ui ask "What is a goroutine?"`)
	}
	return query, nil
}
