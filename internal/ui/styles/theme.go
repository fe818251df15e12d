// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components of the chat screen.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	MessageBody    lipgloss.Style
	Note           lipgloss.Style
	Interrupted    lipgloss.Style
	Stats          lipgloss.Style

	Input   lipgloss.Style
	Spinner lipgloss.Style

	StatusBar     lipgloss.Style
	StatusOnline  lipgloss.Style
	StatusOffline lipgloss.Style
	StatusMuted   lipgloss.Style

	Error lipgloss.Style
	Muted lipgloss.Style
}

// NewTheme detects the terminal and builds a theme for it.
func NewTheme() *Theme {
	return newTheme(termenv.ColorProfile(), termenv.HasDarkBackground())
}

// ForMode builds a theme for a ui.theme setting. "auto" (or anything
// unrecognized) detects the terminal; "notty" disables color.
func ForMode(mode string) *Theme {
	switch strings.ToLower(mode) {
	case "dark":
		return newTheme(termenv.ColorProfile(), true)
	case "light":
		return newTheme(termenv.ColorProfile(), false)
	case "notty":
		return newTheme(termenv.Ascii, true)
	default:
		return NewTheme()
	}
}

func newTheme(profile termenv.Profile, isDark bool) *Theme {
	t := &Theme{IsDark: isDark, ColorProfile: profile}

	r := lipgloss.NewRenderer(os.Stdout)
	r.SetColorProfile(profile)
	r.SetHasDarkBackground(isDark)
	t.initStyles(r)
	return t
}

func (t *Theme) initStyles(r *lipgloss.Renderer) {
	t.Header = r.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = r.NewStyle().Bold(true).Foreground(Purple)

	t.UserLabel = r.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = r.NewStyle().Bold(true).Foreground(Purple)
	t.SystemLabel = r.NewStyle().Bold(true).Foreground(Amber)
	t.MessageBody = r.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.Note = r.NewStyle().Foreground(TextSecondary).Italic(true).PaddingLeft(2)
	t.Interrupted = r.NewStyle().Foreground(Amber).Italic(true)
	t.Stats = r.NewStyle().Foreground(TextMuted).PaddingLeft(2)

	t.Input = r.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)
	t.Spinner = r.NewStyle().Foreground(Purple)

	t.StatusBar = r.NewStyle().Foreground(TextSecondary).Background(SurfaceDim).Padding(0, 1)
	t.StatusOnline = r.NewStyle().Foreground(Emerald).Background(SurfaceDim)
	t.StatusOffline = r.NewStyle().Foreground(Rose).Background(SurfaceDim)
	t.StatusMuted = r.NewStyle().Foreground(TextMuted).Background(SurfaceDim)

	t.Error = r.NewStyle().Foreground(Rose).Bold(true)
	t.Muted = r.NewStyle().Foreground(TextMuted)
}

// LayoutMode represents the responsive layout for a given width.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// LayoutFor returns the layout mode for a terminal width.
func LayoutFor(width int) LayoutMode {
	if width < 60 {
		return LayoutNarrow
	}
	if width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}
