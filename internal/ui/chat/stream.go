// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/devkabir/chat-ui/internal/llm"
	"github.com/devkabir/chat-ui/internal/search"
)

// Backend is the part of *llm.Client the chat screen uses.
type Backend interface {
	Complete(ctx context.Context, model string, messages []llm.Message, temperature float64) (string, error)
	CompleteStreamWithStats(ctx context.Context, model string, messages []llm.Message, temperature float64, onFragment func(string)) (*llm.StreamStats, error)
	ListModels(ctx context.Context) []llm.ModelInfo
	Ping(ctx context.Context) error
}

// streamEventBuffer bounds how far the producer can run ahead of the UI.
const streamEventBuffer = 256

// streamRequest is everything a reply needs, captured on the UI goroutine.
type streamRequest struct {
	model       string
	temperature float64
	history     []llm.Message
	stream      bool

	// When set, a search for groundQuery runs first and its results are
	// added to history with groundWith.
	searcher    search.Searcher
	groundQuery string
	groundMax   int
	groundWith  func(extra string) []llm.Message
}

// streamSession owns one in-flight reply.
type streamSession struct {
	id     int
	handle *llm.CancelHandle
	events chan tea.Msg

	// pending holds a non-fragment event read while batching fragments.
	// Only the wait command touches it and waits never overlap.
	pending tea.Msg
}

// startStream launches the producer goroutine for req.
func startStream(parent context.Context, id int, backend Backend, req streamRequest, log *zap.SugaredLogger) *streamSession {
	s := &streamSession{
		id:     id,
		handle: llm.NewCancelHandle(parent),
		events: make(chan tea.Msg, streamEventBuffer),
	}
	go s.run(backend, req, log)
	return s
}

func (s *streamSession) run(backend Backend, req streamRequest, log *zap.SugaredLogger) {
	defer close(s.events)
	defer s.handle.Release()
	ctx := s.handle.Context()

	history := req.history
	if req.searcher != nil && req.groundQuery != "" {
		resp := req.searcher.Search(ctx, req.groundQuery, req.groundMax)
		if resp.Error != "" {
			log.Debugw("grounding search failed", "query", req.groundQuery, "error", resp.Error)
		}
		if resp.OK() && req.groundWith != nil {
			history = req.groundWith(search.FormatContext(resp))
		}
		s.emit(ctx, groundedMsg{id: s.id, resp: resp})
	}

	if !req.stream {
		text, err := backend.Complete(ctx, req.model, history, req.temperature)
		stats := &llm.StreamStats{Model: req.model}
		if err == nil && text != "" {
			stats.FragmentCount = 1
			stats.CharacterCount = len([]rune(text))
			s.emit(ctx, fragmentMsg{id: s.id, text: text})
		}
		s.events <- streamDoneMsg{id: s.id, stats: stats, err: err}
		return
	}

	stats, err := backend.CompleteStreamWithStats(ctx, req.model, history, req.temperature, func(fragment string) {
		s.emit(ctx, fragmentMsg{id: s.id, text: fragment})
	})
	s.events <- streamDoneMsg{id: s.id, stats: stats, err: err}
}

// emit sends ev unless the reply was cancelled, in which case late
// fragments are dropped.
func (s *streamSession) emit(ctx context.Context, ev tea.Msg) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// cancel fires the session's cancel handle.
func (s *streamSession) cancel() bool {
	return s.handle.Cancel()
}

// wait returns a command that delivers the next event. Fragments already
// queued are coalesced into one message so a fast stream costs one render
// per batch rather than one per fragment.
func (s *streamSession) wait() tea.Cmd {
	return func() tea.Msg {
		if s.pending != nil {
			ev := s.pending
			s.pending = nil
			return ev
		}

		ev, ok := <-s.events
		if !ok {
			return nil
		}
		first, isFragment := ev.(fragmentMsg)
		if !isFragment {
			return ev
		}

		var sb strings.Builder
		sb.WriteString(first.text)
		for {
			select {
			case next, ok := <-s.events:
				if !ok {
					return fragmentMsg{id: s.id, text: sb.String()}
				}
				if f, ok := next.(fragmentMsg); ok {
					sb.WriteString(f.text)
					continue
				}
				s.pending = next
				return fragmentMsg{id: s.id, text: sb.String()}
			default:
				return fragmentMsg{id: s.id, text: sb.String()}
			}
		}
	}
}
