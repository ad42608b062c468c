package wasm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	bridge "github.com/SaveTheRbtz/pandoc-bridge-go"
	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

const document = "# Grüße\n\nSome *markdown* with emoji 😀 and symbols € ✓.\n"

type failingWriter struct {
	err error
}

func (f failingWriter) WriteString(string) (int, error) {
	return 0, f.err
}

func newEngine(t *testing.T, module []byte) *Engine {
	t.Helper()

	e, err := New(module, WithLogger(zaptest.NewLogger(t)), WithMemoryLimitPages(16))
	require.NoError(t, err)
	return e
}

func TestIdentityModule(t *testing.T) {
	t.Parallel()

	input := strings.Repeat(document, 100)
	s, err := bridge.NewSession(newEngine(t, IdentityModule), bridge.WithCapacity(5))
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 2; i++ {
		var out strings.Builder
		var stats bridge.Stats
		err = s.Convert(context.Background(), strings.NewReader(input), &out,
			bridge.WithFrom("markdown"), bridge.WithTo("markdown"), bridge.WithStats(&stats))
		require.NoError(t, err)
		assert.Equal(t, input, out.String())
		assert.Equal(t, stats.PulledChecksum, stats.PushedChecksum)
	}
}

func TestFailingModule(t *testing.T) {
	t.Parallel()

	s, err := bridge.NewSession(newEngine(t, FailingModule))
	require.NoError(t, err)
	defer s.Close()

	var out strings.Builder
	err = s.Convert(context.Background(), strings.NewReader(document), &out, bridge.WithFrom("foo"))
	var convErr *bridge.ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "unknown reader format", convErr.Message)
	assert.Empty(t, out.String())
}

func TestStreamErrorTrapsGuest(t *testing.T) {
	t.Parallel()

	s, err := bridge.NewSession(newEngine(t, IdentityModule))
	require.NoError(t, err)
	defer s.Close()

	cause := errors.New("disk full")
	err = s.Convert(context.Background(), strings.NewReader(document), failingWriter{err: cause})
	var writeErr *bridge.StreamWriteError
	require.ErrorAs(t, err, &writeErr)
	require.ErrorIs(t, err, cause)

	// A fresh instance serves the next conversion.
	var out strings.Builder
	require.NoError(t, s.Convert(context.Background(), strings.NewReader(document), &out))
	assert.Equal(t, document, out.String())
}

func TestConvertRaw(t *testing.T) {
	t.Parallel()

	e := newEngine(t, IdentityModule)
	require.NoError(t, e.Init())
	defer e.Exit()

	src := "chunked input"
	var got []byte
	pull := func(dst []byte) (int, error) {
		n := copy(dst, src)
		src = src[n:]
		return n, nil
	}
	push := func(p []byte) error {
		got = append(got, p...)
		return nil
	}

	req := env.Request{BufferSize: 4, From: []byte("md\x00"), To: []byte{0}}
	msg, err := e.Convert(context.Background(), req, pull, push)
	require.NoError(t, err)
	assert.Empty(t, msg)
	assert.Equal(t, "chunked input", string(got))
}

func TestNotInitialized(t *testing.T) {
	t.Parallel()

	e := newEngine(t, IdentityModule)
	nop := func([]byte) (int, error) { return 0, nil }

	_, err := e.Convert(context.Background(), env.Request{BufferSize: 4}, nop, func([]byte) error { return nil })
	require.ErrorIs(t, err, errNotInitialized)

	require.NoError(t, e.Init())
	require.NoError(t, e.Exit())
	require.NoError(t, e.Exit())

	_, err = e.Convert(context.Background(), env.Request{BufferSize: 4}, nop, func([]byte) error { return nil })
	require.ErrorIs(t, err, errNotInitialized)
}

func TestInitRejectsInvalidModule(t *testing.T) {
	t.Parallel()

	e := newEngine(t, []byte("definitely not wasm"))
	require.Error(t, e.Init())

	_, err := bridge.NewSession(e)
	require.Error(t, err)
}

func TestOptions(t *testing.T) {
	t.Parallel()

	_, err := New(IdentityModule, WithMemoryLimitPages(0))
	require.Error(t, err)
}
