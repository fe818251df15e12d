// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/atotto/clipboard"
)

// PlainText is the language reported for untagged or unknown code blocks.
const PlainText = "plaintext"

// CodeBlock is one fenced block from a markdown document.
type CodeBlock struct {
	Language string
	Code     string
}

// CodeBlocks extracts fenced code blocks (``` or ~~~) in document order.
// An unterminated block runs to the end of the text.
func CodeBlocks(markdown string) []CodeBlock {
	var (
		blocks []CodeBlock
		fence  string
		lang   string
		body   []string
		inside bool
	)
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inside {
			if f := openingFence(trimmed); f != "" {
				inside, fence, body = true, f, nil
				lang = NormalizeLanguage(strings.TrimSpace(strings.TrimLeft(trimmed, f[:1])))
			}
			continue
		}
		if strings.HasPrefix(trimmed, fence) && strings.Trim(trimmed, fence[:1]) == "" {
			blocks = append(blocks, CodeBlock{Language: lang, Code: strings.Join(body, "\n")})
			inside = false
			continue
		}
		body = append(body, strings.TrimSuffix(line, "\r"))
	}
	if inside {
		blocks = append(blocks, CodeBlock{Language: lang, Code: strings.Join(body, "\n")})
	}
	return blocks
}

// openingFence returns the fence run (three or more backticks or tildes)
// that opens a block, or "".
func openingFence(line string) string {
	for _, ch := range []string{"`", "~"} {
		n := 0
		for n < len(line) && line[n:n+1] == ch {
			n++
		}
		if n >= 3 {
			return line[:n]
		}
	}
	return ""
}

// NormalizeLanguage maps a fence info string to chroma's canonical lexer
// name in lower case. Empty or unknown languages become PlainText.
func NormalizeLanguage(info string) string {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return PlainText
	}
	lexer := lexers.Get(fields[0])
	if lexer == nil {
		return PlainText
	}
	return strings.ToLower(lexer.Config().Name)
}

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

// Copy writes text to the system clipboard.
func Copy(text string) error {
	return writeClipboard(text)
}
