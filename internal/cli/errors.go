// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for CLI commands.
//
// Handlers always return errors and never print them; Report is the single
// place that turns an error into stderr output and an exit code.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/devkabir/chat-ui/internal/llm"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitCancelled follows the shell convention for SIGINT (128 + 2).
	ExitCancelled = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError is a malformed command line.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// NewUsageError creates a usage error.
func NewUsageError(message string) error {
	return &UsageError{Message: message}
}

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // e.g. "history"
	Action  string // e.g. "delete"
	Err     error
}

func (e *CommandError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err with the command that failed. A nil err stays nil.
func NewCommandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// =============================================================================
// EXIT HANDLING
// =============================================================================

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUsageError
	}
	if llm.IsCancelled(err) || errors.Is(err, context.Canceled) {
		return ExitCancelled
	}
	return ExitGeneralError
}

// Report prints err (if any) and returns the exit code for it. Under --json
// the error is printed as a JSONResponse on stdout instead. Cancellation is
// not repeated on stderr; the handler already said "[Cancelled]".
func Report(err error, cmd Command, args Args) int {
	return report(os.Stdout, os.Stderr, err, cmd, args)
}

func report(stdout, stderr io.Writer, err error, cmd Command, args Args) int {
	code := GetExitCode(err)
	switch {
	case err == nil:
	case args.JSON:
		_ = NewJSONErrorResponse(cmd.String(), err).PrintTo(stdout)
	case code == ExitCancelled:
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if code == ExitUsageError {
			fmt.Fprintln(stderr, "Run 'chat-ui help' for usage.")
		}
	}
	return code
}
