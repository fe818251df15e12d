// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/devkabir/chat-ui/internal/util"
)

// DefaultHTMLURL is the DuckDuckGo HTML results page.
const DefaultHTMLURL = "https://html.duckduckgo.com/html/"

// HTML scrapes the DuckDuckGo HTML results page.
type HTML struct {
	BaseURL string
	client  *http.Client
}

// NewHTML creates an HTML scraping searcher. A nil client uses
// http.DefaultClient.
func NewHTML(client *http.Client) *HTML {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTML{BaseURL: DefaultHTMLURL, client: client}
}

// Search implements Searcher.
func (h *HTML) Search(ctx context.Context, query string, maxResults int) Response {
	maxResults = clampResults(maxResults)

	body, err := fetch(ctx, h.client, h.BaseURL+"?q="+url.QueryEscape(query))
	if err != nil {
		return failed(query, err)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return failed(query, fmt.Errorf("parse results page: %w", err))
	}

	resp := newResponse(query)
	resp.Results = parseResults(doc, maxResults)
	return resp
}

// parseResults walks the page collecting .result blocks that have both a
// title link and a snippet.
func parseResults(doc *html.Node, maxResults int) []Result {
	results := []Result{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result") {
			if r, ok := parseResult(n); ok {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

func parseResult(n *html.Node) (Result, bool) {
	titleBlock := findFirst(n, func(n *html.Node) bool { return hasClass(n, "result__title") })
	if titleBlock == nil {
		return Result{}, false
	}
	link := findFirst(titleBlock, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "a" })
	snippet := findFirst(n, func(n *html.Node) bool { return hasClass(n, "result__snippet") })
	if link == nil || snippet == nil {
		return Result{}, false
	}

	href := resolveRedirect(attr(link, "href"))
	if href == "" {
		if u := findFirst(n, func(n *html.Node) bool { return hasClass(n, "result__url") }); u != nil {
			href = textContent(u)
		}
	}
	return Result{
		Title:   textContent(link),
		Snippet: textContent(snippet),
		URL:     href,
		Source:  "DuckDuckGo Search",
		Type:    TypeSearch,
	}, true
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<target> links.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return util.SingleLine(sb.String())
}
