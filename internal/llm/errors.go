// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error sentinels. Use errors.Is against these rather than type assertions
// when only the category matters.
var (
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("transport error")

	// ErrCancelled matches every *CancelledError.
	ErrCancelled = errors.New("request cancelled")

	// ErrEmptyResponse indicates a completion response carried no choices.
	ErrEmptyResponse = errors.New("response contained no choices")

	// ErrLineTooLong indicates a stream line grew past MaxLineSize without a newline.
	ErrLineTooLong = errors.New("stream line exceeds maximum size")
)

// TransportError reports a failed exchange with the completion server:
// a non-2xx status, a network failure, or an unreadable body.
type TransportError struct {
	Op         string // "complete", "stream", "models"
	StatusCode int    // 0 when no response was received
	Message    string // server-provided error message, if any
	Body       string // size-limited response body for non-2xx statuses
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: server returned HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: server returned HTTP %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transport error"
	}
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTransport) match.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Temporary reports whether a caller might reasonably try again.
// The client itself never does.
func (e *TransportError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// CancelledError reports that the caller's cancellation signal fired before
// the operation finished.
type CancelledError struct {
	Err error // context.Canceled or context.DeadlineExceeded
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return "request cancelled: deadline exceeded"
	}
	return "request cancelled"
}

// Unwrap returns the context error.
func (e *CancelledError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCancelled) match.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// IsCancelled reports whether err is (or wraps) a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsTransport reports whether err is (or wraps) a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// classify turns a failure observed while ctx was in use into the error the
// caller sees. Cancellation wins over whatever the network layer reported.
func classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &CancelledError{Err: ctxErr}
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
