// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the interactive chat screen as a Bubble Tea
// program.
//
// Replies stream in on a background goroutine that calls the completion
// client; fragments reach the program through a channel drained by a
// tea.Cmd, so no global program reference is needed. Esc or Ctrl+C while
// a reply is streaming fires the request's llm.CancelHandle; Ctrl+C while
// idle quits.
//
// Slash commands (/help, /clear, /model, /models, /search, /copy, /save,
// /temp, /system, /quit) are handled locally and never sent to the model.
// Tab completes command names and, after /model, model ids.
package chat
