// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations in a local SQLite database
// (~/.chat-ui/history.db by default, pure-Go driver, no cgo).
//
// # Usage
//
//	store, err := storage.Open(ctx, dbPath, logger)
//	if err != nil { ... }
//	defer store.Close()
//
//	err = store.Save(ctx, conv)
//	metas, err := store.List(ctx, 20)
//	conv, err := store.Load(ctx, metas[0].ID)
//	hits, err := store.Search(ctx, "sqlite")
//
// Conversations can be exported with ExportMarkdown and ExportJSON.
package storage
