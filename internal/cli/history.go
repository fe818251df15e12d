// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - Saved conversation management.
//
// Command: history [subcommand]
// Aliases: sessions, hist
//
// Subcommands:
//   list (default)      List saved conversations, most recent first
//   search <text>       Find conversations by title or message text
//   show <ref>          Print a conversation
//   export <ref>        Export as Markdown (default) or JSON
//   delete <ref>        Delete a conversation
//   clear --confirm     Delete every conversation
//   resume <ref>        Continue a conversation in the TUI
//
// <ref> is a list number (1 = most recent) or a unique ID prefix.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/render"
	"github.com/devkabir/chat-ui/internal/storage"
	"github.com/devkabir/chat-ui/internal/util"
)

// HistoryAction is the --json payload of delete and clear.
type HistoryAction struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Count  int    `json:"count,omitempty"`
	Output string `json:"output,omitempty"`
}

// HandleHistory runs the history command.
func HandleHistory(ctx context.Context, app *App, args Args) error {
	store, err := app.OpenStore(ctx)
	if err != nil {
		return NewCommandError("history", args.Subcommand, err)
	}
	defer store.Close()

	switch args.Subcommand {
	case "list", "ls", "l":
		err = historyList(ctx, app, store, args)
	case "search", "find":
		err = historySearch(ctx, app, store, args)
	case "show", "view", "cat":
		err = historyShow(ctx, app, store, args)
	case "export":
		err = historyExport(ctx, app, store, args)
	case "delete", "rm":
		err = historyDelete(ctx, app, store, args)
	case "clear", "delete-all":
		err = historyClear(ctx, app, store, args)
	default:
		return NewUsageError(fmt.Sprintf("unknown history subcommand %q (list, search, show, export, delete, clear, resume)", args.Subcommand))
	}
	return NewCommandError("history", args.Subcommand, err)
}

func historyList(ctx context.Context, app *App, store *storage.Store, args Args) error {
	metas, err := store.List(ctx, args.Limit)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("history", metas).PrintTo(app.Stdout)
	}
	fmt.Fprint(app.Stdout, storage.FormatSessionList(metas))
	if len(metas) == 0 {
		fmt.Fprintln(app.Stdout)
	}
	return nil
}

func historySearch(ctx context.Context, app *App, store *storage.Store, args Args) error {
	if args.Query == "" {
		return NewUsageError("history search needs some text to look for")
	}
	metas, err := store.Search(ctx, args.Query)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("history", metas).PrintTo(app.Stdout)
	}
	fmt.Fprint(app.Stdout, storage.FormatSessionList(metas))
	if len(metas) == 0 {
		fmt.Fprintln(app.Stdout)
	}
	return nil
}

// loadRef resolves and loads the conversation args.Target names.
func loadRef(ctx context.Context, store *storage.Store, args Args) (*model.Conversation, error) {
	if args.Target == "" {
		return nil, NewUsageError(fmt.Sprintf("history %s needs a conversation number or ID", args.Subcommand))
	}
	id, err := store.Resolve(ctx, args.Target)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", args.Target, err)
	}
	return store.Load(ctx, id)
}

func historyShow(ctx context.Context, app *App, store *storage.Store, args Args) error {
	conv, err := loadRef(ctx, store, args)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("history", conv).PrintTo(app.Stdout)
	}
	md := storage.ExportMarkdown(conv)
	if app.TTY && app.Config.UI.RenderMarkdown {
		md = render.New(app.Config.UI.Theme, GetTerminalWidth(), true).Render(md)
	}
	fmt.Fprintln(app.Stdout, md)
	return nil
}

func historyExport(ctx context.Context, app *App, store *storage.Store, args Args) error {
	conv, err := loadRef(ctx, store, args)
	if err != nil {
		return err
	}

	var data []byte
	switch args.Format {
	case "md", "markdown":
		data = []byte(storage.ExportMarkdown(conv))
	case "json":
		if data, err = storage.ExportJSON(conv); err != nil {
			return err
		}
		data = append(data, '\n')
	default:
		return NewUsageError(fmt.Sprintf("unknown export format %q (md or json)", args.Format))
	}

	if args.Output == "" || args.Output == "-" {
		_, err = app.Stdout.Write(data)
		return err
	}
	if err := util.AtomicWriteFile(args.Output, data, 0600); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("history", HistoryAction{Action: "export", ID: conv.ID, Output: args.Output}).PrintTo(app.Stdout)
	}
	if !args.Quiet {
		fmt.Fprintf(app.Stderr, "Exported %q to %s\n", conv.GetTitle(), args.Output)
	}
	return nil
}

func historyDelete(ctx context.Context, app *App, store *storage.Store, args Args) error {
	if args.Target == "" {
		return NewUsageError("history delete needs a conversation number or ID")
	}
	id, err := store.Resolve(ctx, args.Target)
	if err != nil {
		return fmt.Errorf("%q: %w", args.Target, err)
	}
	if err := store.Delete(ctx, id); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("history", HistoryAction{Action: "delete", ID: id, Count: 1}).PrintTo(app.Stdout)
	}
	if !args.Quiet {
		fmt.Fprintf(app.Stdout, "Deleted %s.\n", shortID(id))
	}
	return nil
}

func historyClear(ctx context.Context, app *App, store *storage.Store, args Args) error {
	if !args.Confirm {
		return NewUsageError("history clear deletes every conversation; add --confirm to proceed")
	}
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("history", HistoryAction{Action: "clear", Count: n}).PrintTo(app.Stdout)
	}
	if !args.Quiet {
		fmt.Fprintf(app.Stdout, "Deleted %d conversations.\n", n)
	}
	return nil
}

// LoadConversation resolves ref against the history for the TUI's resume.
func LoadConversation(ctx context.Context, app *App, ref string) (*model.Conversation, error) {
	store, err := app.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	conv, err := loadRef(ctx, store, Args{Subcommand: "resume", Target: ref})
	if errors.Is(err, storage.ErrConversationNotFound) {
		return nil, fmt.Errorf("no saved conversation matches %q", ref)
	}
	return conv, err
}
