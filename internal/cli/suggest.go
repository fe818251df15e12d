// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/devkabir/chat-ui/internal/util"
)

// validCommands lists commands and aliases accepted by ParseArgs.
var validCommands = []string{
	"tui", "ask", "chat", "models", "search", "history",
	"config", "version", "help",
	"repl", "sessions", // aliases
}

// typoBudget is how many edits a typo of n runes may contain.
func typoBudget(n int) int {
	switch {
	case n > 8:
		return 3
	case n >= 4:
		return 2
	default:
		return 1
	}
}

// SuggestCommand returns the valid command nearest to a mistyped input,
// or "" when the input is a command already or nothing is near enough.
// Ties go to the command listed first.
func SuggestCommand(input string) string {
	input = strings.ToLower(input)
	n := util.RuneLen(input)
	if n < 2 {
		return ""
	}

	best, bestDist := "", typoBudget(n)+1
	for _, cmd := range validCommands {
		d := levenshteinDistance(input, cmd)
		if d == 0 {
			return ""
		}
		if d < bestDist {
			best, bestDist = cmd, d
		}
	}
	return best
}

// levenshteinDistance counts the rune insertions, deletions and
// substitutions that turn a into b.
func levenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	// row[j] holds the distance between the current prefix of ra and rb[:j].
	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i, ca := range ra {
		diag := row[0]
		row[0] = i + 1
		for j, cb := range rb {
			sub := diag
			if ca != cb {
				sub++
			}
			diag = row[j+1]
			row[j+1] = min(row[j+1]+1, row[j]+1, sub)
		}
	}
	return row[len(rb)]
}
