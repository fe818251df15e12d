// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/devkabir/chat-ui/internal/config"
	"github.com/devkabir/chat-ui/internal/llm"
	"github.com/devkabir/chat-ui/internal/search"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// fragmentMsg carries one or more fragments that arrived together.
type fragmentMsg struct {
	id   int
	text string
}

// streamDoneMsg ends a reply. Stats are present even on failure.
type streamDoneMsg struct {
	id    int
	stats *llm.StreamStats
	err   error
}

// groundedMsg reports the search run before a reply was requested.
type groundedMsg struct {
	id   int
	resp search.Response
}

// =============================================================================
// BACKGROUND RESULTS
// =============================================================================

// pingMsg reports server reachability.
type pingMsg struct {
	err error
}

// modelsMsg delivers the model list.
type modelsMsg struct {
	models []llm.ModelInfo
	show   bool
}

// searchMsg delivers the result of /search.
type searchMsg struct {
	resp search.Response
}

// savedMsg reports a history save.
type savedMsg struct {
	err    error
	manual bool
}

// configMsg carries a reloaded configuration.
type configMsg struct {
	cfg *config.Config
}
