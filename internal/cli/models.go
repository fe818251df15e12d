// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/devkabir/chat-ui/internal/llm"
	"github.com/devkabir/chat-ui/internal/model"
)

// ModelsData is the --json payload of models.
type ModelsData struct {
	Current  string          `json:"current"`
	Fallback bool            `json:"fallback"`
	Models   []llm.ModelInfo `json:"models"`
}

// HandleModels lists the server's models. When the server cannot be asked
// the fallback list is shown with a warning.
func HandleModels(ctx context.Context, app *App, args Args) error {
	current := app.Config.Chat.DefaultModel

	models, err := app.Client.FetchModels(ctx)
	fallback := err != nil
	if fallback {
		app.Log.Warnw("listing models failed", "error", err)
		models = llm.FallbackModels()
	}

	if args.JSON {
		return NewJSONResponse("models", ModelsData{Current: current, Fallback: fallback, Models: models}).PrintTo(app.Stdout)
	}

	if fallback && !args.Quiet {
		fmt.Fprintln(app.Stderr, WarningStyle.Render(fmt.Sprintf("Could not reach %s (%v); showing the default model.", app.Client.BaseURL(), err)))
	}
	fmt.Fprintln(app.Stdout, model.FormatModelList(models, current))
	return nil
}
