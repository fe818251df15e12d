// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sort"
	"strings"
	"unicode"
)

// =============================================================================
// FUZZY MATCHING
// =============================================================================

// fuzzyMatch reports whether every rune of query appears in target in
// order, ignoring case, and scores the match (higher is better).
//
// Consecutive runes, a match at the start and matches at word boundaries
// score extra, so "md" prefers "/model" over "/temp d".
func fuzzyMatch(query, target string) (score int, matched bool) {
	if query == "" {
		return 0, true
	}
	q := []rune(strings.ToLower(query))
	t := []rune(strings.ToLower(target))
	if len(q) > len(t) {
		return 0, false
	}

	qi, last := 0, -1
	for ti := 0; ti < len(t) && qi < len(q); ti++ {
		if t[ti] != q[qi] {
			continue
		}
		s := 1
		if last == ti-1 {
			s += 5
		}
		if ti == 0 {
			s += 10
		}
		if isWordBoundary(t, ti) {
			s += 7
		}
		score += s
		last = ti
		qi++
	}
	if qi != len(q) {
		return 0, false
	}
	// Shorter targets win ties.
	return score - len(t)/4, true
}

func isWordBoundary(runes []rune, pos int) bool {
	if pos == 0 {
		return true
	}
	prev := runes[pos-1]
	switch prev {
	case ' ', '/', '-', '_', '.', ':':
		return true
	}
	return unicode.IsLower(prev) && unicode.IsUpper(runes[pos])
}

// fuzzyFilter returns the targets matching query, best first. Equal scores
// keep their original order.
func fuzzyFilter(query string, targets []string) []string {
	type scored struct {
		target string
		score  int
	}
	var matches []scored
	for _, t := range targets {
		if s, ok := fuzzyMatch(query, t); ok {
			matches = append(matches, scored{t, s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.target
	}
	return out
}

// =============================================================================
// TAB COMPLETION
// =============================================================================

// commandNames lists the slash commands offered by completion.
func commandNames() []string {
	names := make([]string, 0, len(commandHelp))
	for _, c := range commandHelp {
		name, _, _ := strings.Cut(c[0], " ")
		names = append(names, strings.TrimPrefix(name, "/"))
	}
	return names
}

// complete expands the input line. It completes the command name of
// "/mo" and the model of "/model gem". The second result lists the other
// candidates when the match was ambiguous.
func complete(input string, models []string) (string, []string) {
	if !strings.HasPrefix(input, "/") || strings.HasPrefix(input, "//") {
		return input, nil
	}
	name, arg, hasArg := strings.Cut(input[1:], " ")

	if !hasArg {
		// An exact command stays put so "/model" can take an argument.
		for _, c := range commandNames() {
			if c == strings.ToLower(name) {
				return "/" + c + " ", nil
			}
		}
		matches := fuzzyFilter(name, commandNames())
		if len(matches) == 0 {
			return input, nil
		}
		return "/" + matches[0] + " ", others(matches)
	}

	if strings.ToLower(name) != "model" || len(models) == 0 {
		return input, nil
	}
	matches := fuzzyFilter(strings.TrimSpace(arg), models)
	if len(matches) == 0 {
		return input, nil
	}
	return "/model " + matches[0], others(matches)
}

func others(matches []string) []string {
	if len(matches) < 2 {
		return nil
	}
	return matches[1:]
}
