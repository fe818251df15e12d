// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search provides web search used to ground chat replies.
//
// Every backend implements Searcher. A failed search never returns an
// error to the caller: the Response carries the message in Error and an
// empty result list, so the chat can continue without context.
//
// # Backends
//
//   - DuckDuckGo: the Instant Answer JSON API
//   - HTML: scrapes the DuckDuckGo HTML results page
//   - Mock: canned results for demos and tests
//   - Chain: first backend with results wins
//
// # Usage
//
//	s := search.New(search.ProviderDuckDuckGo, 20, logger)
//	resp := s.Search(ctx, "golang generics", 5)
//	if len(resp.Results) > 0 {
//	    history = conv.WithContext(search.FormatContext(resp))
//	}
package search
