// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns assistant markdown into terminal output.
//
// Markdown is rendered with glamour; fenced code blocks can be pulled out
// with CodeBlocks (languages normalized through chroma's lexer registry)
// and copied to the system clipboard with Copy.
package render
