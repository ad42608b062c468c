// Package identity implements a passthrough conversion engine.
//
// It hands every pulled chunk straight back through push, so converting a document from a format
// to the same format reproduces the input byte for byte.  It is meant for tests and for exercising
// the streaming bridge without an external converter.
package identity

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

// Engine copies its input to its output and counts lifecycle calls.
type Engine struct {
	pushSize int
	failure  string

	inits *atomic.Int32
	exits *atomic.Int32
}

var _ env.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithPushSize re-slices the output into pushes of at most n bytes.  Slices may end in the
// middle of a multi-byte character.
func WithPushSize(n int) Option {
	return func(e *Engine) { e.pushSize = n }
}

// WithFailure makes every conversion fail with msg before reading any input.
func WithFailure(msg string) Option {
	return func(e *Engine) { e.failure = msg }
}

// New returns an identity engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		inits: atomic.NewInt32(0),
		exits: atomic.NewInt32(0),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Init counts the call, there is nothing to set up.
func (e *Engine) Init() error {
	e.inits.Inc()
	return nil
}

func (e *Engine) Exit() error {
	e.exits.Inc()
	return nil
}

// Inits returns how many times Init was called.
func (e *Engine) Inits() int32 { return e.inits.Load() }

// Exits returns how many times Exit was called.
func (e *Engine) Exits() int32 { return e.exits.Load() }

func (e *Engine) Convert(ctx context.Context, req env.Request, pull env.PullFunc, push env.PushFunc) (string, error) {
	if e.failure != "" {
		return e.failure, nil
	}

	from, fromOK := env.CString(req.From)
	to, toOK := env.CString(req.To)
	if fromOK && toOK && from != to {
		return fmt.Sprintf("identity engine cannot convert %q to %q", from, to), nil
	}

	buf := make([]byte, req.BufferSize)
	for {
		n, err := pull(buf)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", nil
		}
		if err := e.emit(buf[:n], push); err != nil {
			return "", err
		}
	}
}

func (e *Engine) emit(p []byte, push env.PushFunc) error {
	if e.pushSize <= 0 {
		return push(p)
	}
	for len(p) > 0 {
		n := e.pushSize
		if n > len(p) {
			n = len(p)
		}
		if err := push(p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
