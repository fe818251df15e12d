// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// turn.go - One request/reply round trip, shared by ask and chat.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devkabir/chat-ui/internal/config"
	"github.com/devkabir/chat-ui/internal/llm"
	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/search"
)

// turn sends a conversation's history and appends the reply to it.
type turn struct {
	app *App

	// out receives fragments as they arrive; nil buffers the reply.
	out io.Writer

	// extra is attached as context before the last user message. When it
	// is empty and search is set, a web search on the user's message
	// supplies it instead.
	extra  string
	search bool

	// onGrounded is told about a successful search before the request.
	onGrounded func(search.Response)

	// interrupt wires SIGINT to the request's cancel handle.
	interrupt bool
}

type turnResult struct {
	Reply       string
	Interrupted bool
	Stats       *model.Statistics
	Sources     []search.Result
}

func (t turn) run(ctx context.Context, conv *model.Conversation) (turnResult, error) {
	var res turnResult
	cfg := t.app.Config

	history := conv.ToLLMMessages()
	switch {
	case t.extra != "":
		history = conv.WithContext(t.extra)
	case t.search:
		if q := lastUserText(conv); q != "" {
			resp := t.app.Searcher().Search(ctx, q, cfg.Search.MaxResults)
			if resp.OK() {
				history = conv.WithContext(search.FormatContext(resp))
				res.Sources = resp.Results
				if t.onGrounded != nil {
					t.onGrounded(resp)
				}
			} else {
				t.app.Log.Debugw("search gave no context", "query", q, "error", resp.Error)
			}
		}
	}

	handle := llm.NewCancelHandle(ctx)
	defer handle.Release()
	if t.interrupt {
		stop := cancelOnInterrupt(handle)
		defer stop()
	}

	reply := conv.AddAssistantMessage()
	var (
		stats *model.Statistics
		err   error
	)
	if cfg.Chat.Stream {
		var ss *llm.StreamStats
		ss, err = t.app.Client.CompleteStreamWithStats(handle.Context(), conv.Model, history, conv.Temperature, func(fragment string) {
			conv.AppendToLast(fragment)
			if t.out != nil {
				_, _ = io.WriteString(t.out, fragment)
			}
		})
		stats = model.StatisticsFromStream(ss)
	} else {
		start := time.Now()
		var text string
		text, err = t.app.Client.Complete(handle.Context(), conv.Model, history, conv.Temperature)
		elapsed := time.Since(start)
		if err == nil && text != "" {
			conv.AppendToLast(text)
			if t.out != nil {
				_, _ = io.WriteString(t.out, text)
			}
			stats = &model.Statistics{TTFT: elapsed, TotalDuration: elapsed, FragmentCount: 1}
		}
	}

	if err != nil {
		conv.InterruptLast(stats)
		res.Interrupted = true
	} else {
		conv.FinalizeLast(stats)
	}
	res.Reply = reply.GetDisplayContent()
	res.Stats = stats
	return res, err
}

func lastUserText(conv *model.Conversation) string {
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if msg := conv.Messages[i]; msg.Role == model.RoleUser && !msg.Local {
			return msg.Content
		}
	}
	return ""
}

// cancelOnInterrupt cancels h on SIGINT/SIGTERM until stop is called.
func cancelOnInterrupt(h *llm.CancelHandle) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			h.Cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// newConversation starts a conversation with the configured model and
// generation settings.
func newConversation(cfg *config.Config) *model.Conversation {
	conv := model.NewConversationWithModel(cfg.Chat.DefaultModel)
	conv.Temperature = cfg.Chat.Temperature
	conv.SystemPrompt = cfg.Chat.SystemPrompt
	return conv
}
