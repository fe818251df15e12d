// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"net/url"
	"time"
)

// DefaultMockDelay simulates network latency.
const DefaultMockDelay = time.Second

// Mock returns three canned results after Delay.
type Mock struct {
	Delay time.Duration
}

// NewMock creates a mock searcher with the default delay.
func NewMock() *Mock {
	return &Mock{Delay: DefaultMockDelay}
}

// Search implements Searcher.
func (m *Mock) Search(ctx context.Context, query string, maxResults int) Response {
	maxResults = clampResults(maxResults)

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return failed(query, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return failed(query, err)
	}

	q := url.PathEscape(query)
	results := []Result{
		{
			Title:   "Understanding " + query,
			Snippet: "This is a comprehensive overview of " + query + ", covering the key concepts and important information you need to know.",
			URL:     "https://example.com/search/" + q,
			Source:  "Example.com",
			Type:    TypeSearch,
		},
		{
			Title:   query + " - Definition and Examples",
			Snippet: "Learn about " + query + " with practical examples and detailed explanations.",
			URL:     "https://wiki.example.com/" + q,
			Source:  "ExampleWiki",
			Type:    TypeSearch,
		},
		{
			Title:   "Latest News about " + query,
			Snippet: "Recent developments and news related to " + query + ".",
			URL:     "https://news.example.com/topics/" + q,
			Source:  "Example News",
			Type:    TypeNews,
		},
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	resp := newResponse(query)
	resp.Results = results
	return resp
}
