// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Provider names accepted by New.
const (
	ProviderDuckDuckGo = "duckduckgo"
	ProviderHTML       = "html"
	ProviderMock       = "mock"
)

// DefaultMaxResults is used when a caller passes maxResults <= 0.
const DefaultMaxResults = 5

// Result types.
const (
	TypeAnswer   = "answer"
	TypeAbstract = "abstract"
	TypeRelated  = "related"
	TypeSearch   = "search"
	TypeNews     = "news"
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source"`
	Type    string `json:"type"`
}

// Response is the outcome of a search. Error is set (and Results empty)
// when the backend failed.
type Response struct {
	Query     string    `json:"query"`
	Results   []Result  `json:"results"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OK reports whether the search produced at least one result.
func (r Response) OK() bool {
	return r.Error == "" && len(r.Results) > 0
}

// Searcher performs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) Response
}

func newResponse(query string) Response {
	return Response{Query: query, Results: []Result{}, Timestamp: time.Now().UTC()}
}

func failed(query string, err error) Response {
	resp := newResponse(query)
	resp.Error = err.Error()
	return resp
}

func clampResults(maxResults int) int {
	if maxResults <= 0 {
		return DefaultMaxResults
	}
	return maxResults
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// New returns the searcher for provider, rate limited to requestsPerMinute
// outbound searches (<= 0 disables limiting). The duckduckgo provider falls
// back to HTML scraping when the Instant Answer API has nothing.
func New(provider string, requestsPerMinute int, log *zap.SugaredLogger) Searcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	client := &http.Client{Timeout: 15 * time.Second}

	var s Searcher
	switch strings.ToLower(provider) {
	case ProviderMock:
		return NewMock()
	case ProviderHTML:
		s = NewHTML(client)
	default:
		s = NewChain(NewDuckDuckGo(client), NewHTML(client))
	}
	return NewRateLimited(s, requestsPerMinute, log)
}

// =============================================================================
// CHAIN
// =============================================================================

// Chain tries searchers in order and returns the first response with results.
type Chain struct {
	searchers []Searcher
}

// NewChain creates a chain over the given searchers.
func NewChain(searchers ...Searcher) *Chain {
	return &Chain{searchers: searchers}
}

// Search implements Searcher. If every backend comes back empty, the last
// response is returned so its error (if any) is visible.
func (c *Chain) Search(ctx context.Context, query string, maxResults int) Response {
	last := newResponse(query)
	for _, s := range c.searchers {
		if ctx.Err() != nil {
			return failed(query, ctx.Err())
		}
		resp := s.Search(ctx, query, maxResults)
		if resp.OK() {
			return resp
		}
		last = resp
	}
	return last
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// RateLimited wraps a Searcher with a token bucket.
type RateLimited struct {
	next    Searcher
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewRateLimited allows requestsPerMinute searches with a burst of a few.
func NewRateLimited(next Searcher, requestsPerMinute int, log *zap.SugaredLogger) Searcher {
	if requestsPerMinute <= 0 {
		return next
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	burst := requestsPerMinute / 4
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
		log:     log,
	}
}

// Search waits for a token (or ctx) and then delegates.
func (r *RateLimited) Search(ctx context.Context, query string, maxResults int) Response {
	if err := r.limiter.Wait(ctx); err != nil {
		r.log.Debugw("search rate limit wait aborted", "query", query, "error", err)
		return failed(query, fmt.Errorf("rate limited: %w", err))
	}
	return r.next.Search(ctx, query, maxResults)
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatContext renders results as a system message to prepend to the
// next chat request. Empty when there are no results.
func FormatContext(resp Response) string {
	if len(resp.Results) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Web search results for %q:\n\n", resp.Query)
	for i, r := range resp.Results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r.Title)
		if r.Snippet != "" && r.Snippet != r.Title {
			sb.WriteString("   " + r.Snippet + "\n")
		}
		if r.URL != "" {
			sb.WriteString("   Source: " + r.URL + "\n")
		}
	}
	sb.WriteString("\nUse these results where relevant and cite the sources you rely on.")
	return sb.String()
}

// FormatResults renders results for display in a terminal.
func FormatResults(resp Response) string {
	if resp.Error != "" {
		return fmt.Sprintf("Search failed: %s", resp.Error)
	}
	if len(resp.Results) == 0 {
		return fmt.Sprintf("No results for %q.", resp.Query)
	}
	var sb strings.Builder
	for i, r := range resp.Results {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, r.Type, r.Title)
		if r.Snippet != "" && r.Snippet != r.Title {
			sb.WriteString("   " + r.Snippet + "\n")
		}
		if r.URL != "" {
			sb.WriteString("   " + r.URL + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
