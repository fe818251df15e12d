// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/devkabir/chat-ui/internal/search"
)

// HandleSearch runs a web search and prints the results.
func HandleSearch(ctx context.Context, app *App, args Args) error {
	if args.Query == "" {
		return NewUsageError(`search needs a query, e.g. chat-ui search "golang generics"`)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = app.Config.Search.MaxResults
	}

	resp := app.Searcher().Search(ctx, args.Query, limit)
	if resp.Error != "" {
		return NewCommandError("search", "", errors.New(resp.Error))
	}

	if args.JSON {
		return NewJSONResponse("search", resp).PrintTo(app.Stdout)
	}
	fmt.Fprintln(app.Stdout, search.FormatResults(resp))
	return nil
}
