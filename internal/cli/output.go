package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for command errors. A completed run exits with the number of
// failing tests instead (see driver.Summary.ExitCode).
const (
	ExitSuccess      = 0 // Every test passed or was skipped
	ExitFailure      = 1 // Generic failure, or nothing to run
	ExitCommandError = 2 // Bad flags, unreadable config, database not found
)

// Error codes carried in JSON error responses.
const (
	CodeConfig   = "E001" // configuration could not be loaded
	CodeDiscover = "E002" // test discovery failed
	CodeStore    = "E003" // history database could not be opened or read
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
// An ExitError with an empty message only carries the code; main prints
// nothing for it.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an
// ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok", "fail" or "error"
	Data   any       `json:"data,omitempty"`  // payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// JSON reports whether output is machine-readable.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success outputs a result. In text format it calls text, which renders the
// same data for people.
func (f *OutputFormatter) Success(data any, text func(io.Writer)) error {
	return f.Result("ok", data, text)
}

// Result outputs data with the given response status.
func (f *OutputFormatter) Result(status string, data any, text func(io.Writer)) error {
	if f.JSON() {
		return f.encode(CLIResponse{Status: status, Data: data})
	}
	if text != nil {
		text(f.Writer)
	}
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// fail reports a command error and returns it as an ExitError with
// ExitCommandError. In JSON mode the error is also written to stdout so the
// response is always a single document.
func (f *OutputFormatter) fail(code, message string, err error) error {
	if f.JSON() {
		_ = f.Error(code, message, err.Error())
	}
	return WrapExitError(ExitCommandError, message, err)
}
