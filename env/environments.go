package env

import "context"

// PullFunc fills dst with the next chunk of UTF-8 encoded input and returns the number of bytes
// written.  Zero bytes with a nil error is the only end-of-stream signal.
type PullFunc func(dst []byte) (n int, err error)

// PushFunc delivers a chunk of UTF-8 encoded output.  Chunk boundaries may fall inside
// a multi-byte sequence.
type PushFunc func(src []byte) error

// Request carries the pass-through parameters of a single conversion.
//
// From, To and Settings are either nil (the parameter is absent) or the UTF-8 bytes of
// the value followed by a single zero byte.
type Request struct {
	// BufferSize is the maximum number of bytes a single pull may produce.
	// Engines must pass pull a destination at least this large.
	BufferSize int

	From     []byte
	To       []byte
	Settings []byte
}

// Engine is an external document converter that can only be reached through pull/push callbacks.
type Engine interface {
	// Init performs process-wide engine initialization.
	// It is called once, before the first conversion.
	Init() error
	// Exit tears the engine down.  It is called once, after the last conversion.
	Exit() error
	// Convert runs one synchronous conversion.  Input is requested by calling pull until it
	// returns 0, output is delivered by calling push.
	//
	// A non-empty message reports a conversion failure.  err is reserved for host side faults,
	// e.g. an error returned from pull or push that aborted the engine.
	Convert(ctx context.Context, req Request, pull PullFunc, push PushFunc) (message string, err error)
}
