// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
)

// =============================================================================
// DECODER STATE
// =============================================================================

// DecoderState is the position of a Decoder in its lifecycle.
type DecoderState int

const (
	// StateReading is the initial state: the body is still being read.
	StateReading DecoderState = iota
	// StateDraining means the body hit EOF and buffered text is being flushed.
	StateDraining
	// StateDone means the stream ended successfully ([DONE] or EOF).
	StateDone
	// StateCancelled means the caller's context fired.
	StateCancelled
	// StateFailed means the body could not be read.
	StateFailed
)

// String returns the state name.
func (s DecoderState) String() string {
	switch s {
	case StateReading:
		return "reading"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s DecoderState) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
	readBufSize  = 4096
)

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns a chat-completion event stream into fragments.
//
// Raw bytes pass through a stateful UTF-8 decoder, so a multi-byte character
// split across two reads is emitted whole. Decoded text accumulates in a
// pending buffer from which complete lines are taken; between reads the buffer
// holds at most one partial line.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	body io.ReadCloser
	src  io.Reader // body seen through the UTF-8 decoder
	log  *zap.SugaredLogger

	buf     []byte
	pending []byte
	off     int // start of unconsumed text in pending

	state     DecoderState
	err       error
	skipped   int
	fragments int

	closeOnce sync.Once
}

// NewDecoder wraps a response body. The Decoder owns body from here on and
// closes it exactly once when it reaches a terminal state (or on Close).
func NewDecoder(body io.ReadCloser, log *zap.SugaredLogger) *Decoder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Decoder{
		body:  body,
		src:   unicode.UTF8.NewDecoder().Reader(body),
		log:   log,
		buf:   make([]byte, readBufSize),
		state: StateReading,
	}
}

// State returns the current state.
func (d *Decoder) State() DecoderState { return d.state }

// Err returns the error that ended the stream, if any.
func (d *Decoder) Err() error { return d.err }

// Skipped returns how many data lines could not be decoded.
func (d *Decoder) Skipped() int { return d.skipped }

// Fragments returns how many non-empty fragments were produced.
func (d *Decoder) Fragments() int { return d.fragments }

// Close releases the body without waiting for the stream to end.
// The decoder moves to StateCancelled unless it had already finished.
func (d *Decoder) Close() error {
	if !d.state.Terminal() {
		d.state = StateCancelled
		d.err = &CancelledError{Err: context.Canceled}
	}
	return d.closeBody()
}

// Run decodes the whole stream, calling onFragment synchronously for every
// non-empty fragment in arrival order. The context is checked before every
// read and before every callback; once it is done no further callbacks happen.
//
// Run returns nil when the stream ends with [DONE] or EOF, a *CancelledError
// when ctx fires and a *TransportError when the body cannot be read.
func (d *Decoder) Run(ctx context.Context, onFragment func(string)) error {
	for {
		frame, err := d.Next(ctx)
		if err != nil {
			return err
		}
		if frame.Done {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return d.finish(StateCancelled, &CancelledError{Err: ctxErr})
		}
		if onFragment != nil {
			onFragment(frame.Fragment)
		}
	}
}

// Next returns the next fragment, or a Frame with Done set once the stream
// ended successfully. After a terminal state every call returns the same
// result.
func (d *Decoder) Next(ctx context.Context) (Frame, error) {
	for {
		if d.state.Terminal() {
			return Frame{Done: d.state == StateDone}, d.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Frame{}, d.finish(StateCancelled, &CancelledError{Err: ctxErr})
		}

		if line, ok := d.takeLine(); ok {
			if frame, emit := d.parseLine(line); emit {
				if frame.Done {
					return frame, d.finish(StateDone, nil)
				}
				return frame, nil
			}
			continue
		}

		if d.state == StateDraining {
			rest := d.takeRest()
			if len(rest) == 0 {
				return Frame{Done: true}, d.finish(StateDone, nil)
			}
			if frame, emit := d.parseLine(rest); emit {
				if frame.Done {
					return frame, d.finish(StateDone, nil)
				}
				return frame, nil
			}
			continue
		}

		if len(d.pending)-d.off > MaxLineSize {
			return Frame{}, d.finish(StateFailed, &TransportError{Op: "stream", Err: ErrLineTooLong})
		}

		if err := d.fill(ctx); err != nil {
			return Frame{}, err
		}
	}
}

// fill performs exactly one read of the body.
func (d *Decoder) fill(ctx context.Context) error {
	d.compact()
	n, err := d.src.Read(d.buf)
	if n > 0 {
		d.pending = append(d.pending, d.buf[:n]...)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		d.state = StateDraining
		return nil
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return d.finish(StateCancelled, &CancelledError{Err: ctxErr})
		}
		return d.finish(StateFailed, &TransportError{Op: "stream", Err: err})
	}
}

// takeLine removes the next newline-terminated line from the pending buffer.
func (d *Decoder) takeLine() ([]byte, bool) {
	i := bytes.IndexByte(d.pending[d.off:], '\n')
	if i < 0 {
		return nil, false
	}
	line := d.pending[d.off : d.off+i]
	d.off += i + 1
	return line, true
}

// takeRest removes whatever is left in the pending buffer.
func (d *Decoder) takeRest() []byte {
	rest := d.pending[d.off:]
	d.off = len(d.pending)
	return rest
}

// compact moves the partial line to the front of the pending buffer.
func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	n := copy(d.pending, d.pending[d.off:])
	d.pending = d.pending[:n]
	d.off = 0
}

// parseLine interprets one line. emit is false for lines that produce
// nothing: non-data lines, undecodable payloads and empty fragments.
func (d *Decoder) parseLine(raw []byte) (frame Frame, emit bool) {
	line := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Frame{}, false
	}
	payload := line[len(dataPrefix):]
	if string(payload) == doneSentinel {
		return Frame{Done: true}, true
	}

	var chunk StreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		d.skipped++
		d.log.Debugw("skipping undecodable stream line",
			"error", err,
			"payload", truncateBytes(payload, 120))
		return Frame{}, false
	}
	if len(chunk.Error) > 0 {
		d.log.Warnw("server reported an error inside the stream",
			"error", truncateBytes(chunk.Error, 240))
	}

	fragment := chunk.Fragment()
	if fragment == "" {
		return Frame{}, false
	}
	d.fragments++
	return Frame{Fragment: fragment}, true
}

// finish moves the decoder to a terminal state and closes the body.
func (d *Decoder) finish(state DecoderState, err error) error {
	if !d.state.Terminal() {
		d.state = state
		d.err = err
	}
	if cerr := d.closeBody(); cerr != nil {
		d.log.Debugw("closing stream body", "error", cerr)
	}
	return d.err
}

func (d *Decoder) closeBody() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.body.Close()
	})
	return err
}

func truncateBytes(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
