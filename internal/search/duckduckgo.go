// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultDuckDuckGoURL is the Instant Answer API endpoint.
const DefaultDuckDuckGoURL = "https://api.duckduckgo.com/"

const maxSearchBody = 2 * 1024 * 1024

// DuckDuckGo queries the Instant Answer API.
type DuckDuckGo struct {
	BaseURL string
	client  *http.Client
}

// NewDuckDuckGo creates an Instant Answer searcher. A nil client uses
// http.DefaultClient.
func NewDuckDuckGo(client *http.Client) *DuckDuckGo {
	if client == nil {
		client = http.DefaultClient
	}
	return &DuckDuckGo{BaseURL: DefaultDuckDuckGoURL, client: client}
}

type instantAnswer struct {
	Heading        string `json:"Heading"`
	Abstract       string `json:"Abstract"`
	AbstractURL    string `json:"AbstractURL"`
	AbstractSource string `json:"AbstractSource"`
	Answer         string `json:"Answer"`
	AnswerType     string `json:"AnswerType"`
	RelatedTopics  []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search implements Searcher.
func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) Response {
	maxResults = clampResults(maxResults)

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	body, err := fetch(ctx, d.client, d.BaseURL+"?"+params.Encode())
	if err != nil {
		return failed(query, err)
	}

	var data instantAnswer
	if err := json.Unmarshal(body, &data); err != nil {
		return failed(query, fmt.Errorf("decode instant answer: %w", err))
	}

	resp := newResponse(query)
	if data.Abstract != "" {
		resp.Results = append(resp.Results, Result{
			Title:   orDefault(data.Heading, "Overview"),
			Snippet: data.Abstract,
			URL:     data.AbstractURL,
			Source:  orDefault(data.AbstractSource, "DuckDuckGo"),
			Type:    TypeAbstract,
		})
	}
	for _, topic := range data.RelatedTopics {
		if len(resp.Results) >= maxResults {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		title, _, _ := strings.Cut(topic.Text, " - ")
		resp.Results = append(resp.Results, Result{
			Title:   orDefault(title, "Related Topic"),
			Snippet: topic.Text,
			URL:     topic.FirstURL,
			Source:  "DuckDuckGo",
			Type:    TypeRelated,
		})
	}
	if data.Answer != "" {
		answer := Result{
			Title:   "Quick Answer",
			Snippet: data.Answer,
			Source:  orDefault(data.AnswerType, "DuckDuckGo"),
			Type:    TypeAnswer,
		}
		resp.Results = append([]Result{answer}, resp.Results...)
	}
	if len(resp.Results) > maxResults {
		resp.Results = resp.Results[:maxResults]
	}
	return resp
}

// fetch performs a GET and returns the (size limited) body of a 2xx reply.
func fetch(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", "chat-ui/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search request failed: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	return body, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
