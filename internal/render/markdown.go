// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// DefaultWordWrap is used when a Renderer is created with width <= 0.
const DefaultWordWrap = 80

// Renderer renders markdown for the terminal. When disabled, or when
// glamour fails, the input is returned unchanged.
type Renderer struct {
	mu      sync.Mutex
	enabled bool
	style   string
	width   int
	tr      *glamour.TermRenderer
}

// New creates a renderer. style is "auto", "dark", "light" or "notty".
func New(style string, width int, enabled bool) *Renderer {
	r := &Renderer{enabled: enabled, style: strings.ToLower(style)}
	r.SetWidth(width)
	return r
}

// Enabled reports whether markdown rendering is on.
func (r *Renderer) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetWidth changes the word wrap width, rebuilding the glamour renderer
// lazily on the next Render.
func (r *Renderer) SetWidth(width int) {
	if width <= 0 {
		width = DefaultWordWrap
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if width != r.width {
		r.width = width
		r.tr = nil
	}
}

// Render renders markdown. Trailing newlines glamour adds are trimmed.
func (r *Renderer) Render(markdown string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled || strings.TrimSpace(markdown) == "" {
		return markdown
	}
	if r.tr == nil {
		tr, err := glamour.NewTermRenderer(styleOption(r.style), glamour.WithWordWrap(r.width))
		if err != nil {
			r.enabled = false
			return markdown
		}
		r.tr = tr
	}
	out, err := r.tr.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.Trim(out, "\n")
}

func styleOption(style string) glamour.TermRendererOption {
	switch style {
	case "dark", "light", "notty":
		return glamour.WithStandardStyle(style)
	default:
		return glamour.WithAutoStyle()
	}
}
