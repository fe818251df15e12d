// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devkabir/chat-ui/internal/llm"
)

// =============================================================================
// MODEL SELECTION
// =============================================================================

// ErrAmbiguousModel is returned when a query matches more than one model.
type ErrAmbiguousModel struct {
	Query   string
	Matches []string
}

// Error implements the error interface.
func (e *ErrAmbiguousModel) Error() string {
	return fmt.Sprintf("%q matches %d models: %s", e.Query, len(e.Matches), strings.Join(e.Matches, ", "))
}

// ResolveModel picks a model from a listing. The query may be a 1-based
// index into models, an exact ID, or a case-insensitive substring that
// matches exactly one ID. An unmatched query is returned verbatim: the
// server may know models it does not list.
func ResolveModel(models []llm.ModelInfo, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("no model given")
	}

	if n, err := strconv.Atoi(query); err == nil {
		if n < 1 || n > len(models) {
			return "", fmt.Errorf("model number %d out of range (1-%d)", n, len(models))
		}
		return models[n-1].ID, nil
	}

	for _, m := range models {
		if m.ID == query {
			return m.ID, nil
		}
	}

	lower := strings.ToLower(query)
	var matches []string
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.ID), lower) {
			matches = append(matches, m.ID)
		}
	}
	switch len(matches) {
	case 0:
		return query, nil
	case 1:
		return matches[0], nil
	default:
		return "", &ErrAmbiguousModel{Query: query, Matches: matches}
	}
}

// FormatModelList renders a numbered listing, marking the current model.
func FormatModelList(models []llm.ModelInfo, current string) string {
	if len(models) == 0 {
		return "No models available."
	}
	var sb strings.Builder
	for i, m := range models {
		marker := " "
		if m.ID == current {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %2d. %s", marker, i+1, m.ID)
		if m.Name != "" && m.Name != m.ID {
			fmt.Fprintf(&sb, " (%s)", m.Name)
		}
		if m.OwnedBy != "" && m.OwnedBy != "unknown" {
			fmt.Fprintf(&sb, " [%s]", m.OwnedBy)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
