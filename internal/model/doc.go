// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: a chat session with its messages, model and system prompt
//   - Message: one message with role, content, timestamp and generation stats
//   - Statistics: timing for a single assistant reply
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
//	conv := model.NewConversationWithModel("google/gemma-3-12b")
//	conv.AddUserMessage("Hello!")
//	reply := conv.AddAssistantMessage()
//	// ... stream fragments into conv.AppendToLast ...
//	conv.FinalizeLast(stats)
//
//	history := conv.ToLLMMessages() // wire history for the next request
package model
