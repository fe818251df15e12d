// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"sync"
)

// CancelHandle is a cancellation signal owned by the caller of a request.
// Cancel may be called any number of times from any goroutine, before,
// during or after the request. Once Release has been called Cancel is a no-op.
type CancelHandle struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	released  bool
}

// NewCancelHandle derives a cancellable context from parent.
func NewCancelHandle(parent context.Context) *CancelHandle {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &CancelHandle{ctx: ctx, cancel: cancel}
}

// Context returns the context to pass to Client methods.
func (h *CancelHandle) Context() context.Context {
	return h.ctx
}

// Cancel signals cancellation. It reports whether this call was the one that
// fired the signal.
func (h *CancelHandle) Cancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released || h.cancelled {
		return false
	}
	h.cancelled = true
	h.cancel()
	return true
}

// Cancelled reports whether Cancel fired before Release.
func (h *CancelHandle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Release marks the operation finished and frees the context.
// It does not count as a cancellation.
func (h *CancelHandle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	h.cancel()
}

// Active reports whether the handle can still cancel something.
func (h *CancelHandle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.released && !h.cancelled
}
