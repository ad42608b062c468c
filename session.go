package bridge

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

const (
	stateReady int32 = iota
	stateConverting
	stateClosed
)

type sessionImpl struct {
	engine env.Engine
	lease  *Lease
	buf    *transcodeBuffers

	capacity int
	logger   *zap.Logger

	state *atomic.Int32
}

var _ io.Closer = (*sessionImpl)(nil)

// Session runs conversions one at a time through a single engine, reusing one pair of buffers.
type Session interface {
	// Convert streams input through the engine into output.
	//
	// The call is synchronous: the engine pulls input and pushes output on the calling goroutine.
	// On failure output may hold a prefix of the converted document.
	Convert(ctx context.Context, input io.RuneReader, output io.StringWriter, opts ...ConvertOption) error

	// Close releases the session's engine lease.  Convert fails with ErrClosed afterwards.
	Close() error
}

// NewSession binds a fresh pair of transcoding buffers to engine.
// The engine is initialized if this is its first lease.
func NewSession(engine env.Engine, opts ...Option) (Session, error) {
	s := sessionImpl{
		engine:   engine,
		capacity: DefaultCapacity,
		logger:   zap.NewNop(),
		state:    atomic.NewInt32(stateReady),
	}

	for _, o := range opts {
		if err := o(&s); err != nil {
			return nil, err
		}
	}

	lease, err := Acquire(engine)
	if err != nil {
		return nil, err
	}
	s.lease = lease
	s.buf = newTranscodeBuffers(s.capacity)

	return &s, nil
}

func (s *sessionImpl) Convert(ctx context.Context, input io.RuneReader, output io.StringWriter, opts ...ConvertOption) error {
	var o convertOptions
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return err
		}
	}

	if !s.state.CompareAndSwap(stateReady, stateConverting) {
		if s.state.Load() == stateClosed {
			return ErrClosed
		}
		return ErrBusy
	}
	defer s.state.Store(stateReady)

	s.buf.reset()
	stats := newStatsRecorder()
	pull := &pullAdapter{ctx: ctx, in: input, buf: s.buf, stats: stats}
	push := &pushAdapter{ctx: ctx, out: output, buf: s.buf, stats: stats}

	req := env.Request{
		BufferSize: s.buf.capacityBytes(),
		From:       o.from.encode(),
		To:         o.to.encode(),
		Settings:   o.settings.encode(),
	}

	start := time.Now()
	msg, engineErr := s.engine.Convert(ctx, req, pull.pull, push.push)
	if engineErr == nil && pull.err == nil {
		// Result is recorded in push.err.
		_ = push.finish()
	}

	result := stats.finish(time.Since(start))
	if o.stats != nil {
		*o.stats = result
	}
	s.logger.Debug("conversion finished",
		zap.Object("stats", &result), zap.String("message", msg))

	switch {
	case pull.err != nil:
		return pull.err
	case push.err != nil:
		return push.err
	case engineErr != nil:
		return fmt.Errorf("engine failed: %w", engineErr)
	case msg != "":
		return &ConversionError{Message: msg}
	}
	return nil
}

func (s *sessionImpl) Close() error {
	if s.state.CompareAndSwap(stateReady, stateClosed) {
		s.buf = nil
		return s.lease.Release()
	}
	if s.state.Load() == stateClosed {
		return nil
	}
	return ErrBusy
}

// Process runs a single conversion in a session of its own.
func Process(ctx context.Context, engine env.Engine, from, to string, input io.RuneReader, output io.StringWriter, opts ...ConvertOption) (err error) {
	s, err := NewSession(engine)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.Close())
	}()

	opts = append([]ConvertOption{WithFrom(from), WithTo(to)}, opts...)
	return s.Convert(ctx, input, output, opts...)
}
