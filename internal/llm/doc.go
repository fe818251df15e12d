// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm talks to a local OpenAI-compatible chat-completion server.
//
// It provides three things:
//
//	Client       one request per call against /v1/chat/completions and /v1/models
//	Decoder      the streaming body decoder (data: lines, [DONE], UTF-8 safe)
//	CancelHandle a caller-owned cancellation signal for in-flight requests
//
// Streaming example:
//
//	client := llm.NewClient("http://localhost:1234")
//	handle := llm.NewCancelHandle(context.Background())
//	defer handle.Release()
//
//	err := client.CompleteStream(handle.Context(), "google/gemma-3-12b", msgs, 0.7,
//		func(fragment string) { fmt.Print(fragment) })
//	if llm.IsCancelled(err) {
//		// user pressed Ctrl+C
//	}
//
// Transport failures come back as *TransportError and cancellation as
// *CancelledError. Undecodable stream lines are skipped and logged, never
// returned. Nothing in this package retries.
package llm
