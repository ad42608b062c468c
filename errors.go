package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is matched by every error caused by calling a session in the wrong state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrClosed is returned by Convert after the session was closed.
	ErrClosed = fmt.Errorf("session is closed: %w", ErrInvalidState)

	// ErrBusy is returned when a session is used while a conversion is in flight.
	ErrBusy = fmt.Errorf("conversion already in progress: %w", ErrInvalidState)

	// ErrEngineExited is returned when acquiring an engine that was already torn down.
	ErrEngineExited = errors.New("engine has already exited")
)

// StreamReadError reports a failure of the input stream while the engine was pulling.
type StreamReadError struct {
	Err error
}

func (e *StreamReadError) Error() string {
	return fmt.Sprintf("failed to read input stream: %v", e.Err)
}

func (e *StreamReadError) Unwrap() error {
	return e.Err
}

// StreamWriteError reports a failure of the output stream while the engine was pushing.
type StreamWriteError struct {
	Err error
}

func (e *StreamWriteError) Error() string {
	return fmt.Sprintf("failed to write output stream: %v", e.Err)
}

func (e *StreamWriteError) Unwrap() error {
	return e.Err
}

// ConversionError carries the message returned by the engine, verbatim.
type ConversionError struct {
	Message string
}

func (e *ConversionError) Error() string {
	return e.Message
}
