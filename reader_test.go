package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mixedString = "aé€😀 plain ascii, ünïcödé ✓\n"

func newTestPull(in io.RuneReader, capacity int) *pullAdapter {
	return &pullAdapter{
		ctx:   context.Background(),
		in:    in,
		buf:   newTranscodeBuffers(capacity),
		stats: newStatsRecorder(),
	}
}

type failingRuneReader struct {
	r     io.RuneReader
	after int
	err   error
}

func (f *failingRuneReader) ReadRune() (rune, int, error) {
	if f.after == 0 {
		return 0, 0, f.err
	}
	f.after--
	return f.r.ReadRune()
}

func TestTranscodeBuffers(t *testing.T) {
	t.Parallel()

	b := newTranscodeBuffers(DefaultCapacity)
	assert.Equal(t, 1024, b.capacityChars())
	assert.Equal(t, 4096, b.capacityBytes())

	b.nResidual = 2
	b.reset()
	assert.Equal(t, 0, b.nResidual)
}

func TestPullShortInput(t *testing.T) {
	t.Parallel()

	p := newTestPull(strings.NewReader("hello\n"), DefaultCapacity)
	dst := make([]byte, p.buf.capacityBytes())

	n, err := p.pull(dst)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []byte("hello\n"), dst[:n])

	n, err = p.pull(dst)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// stays exhausted
	n, err = p.pull(dst)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, 3, p.stats.PullCalls)
	assert.Equal(t, int64(6), p.stats.BytesPulled)
	assert.Equal(t, int64(6), p.stats.RunesRead)
}

func TestPullEmptyInput(t *testing.T) {
	t.Parallel()

	p := newTestPull(strings.NewReader(""), 8)
	n, err := p.pull(make([]byte, 32))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPullChunksAtCharacterBoundaries(t *testing.T) {
	t.Parallel()

	input := strings.Repeat(mixedString, 50)
	for _, capacity := range []int{1, 2, 3, 7, 64, 1024} {
		p := newTestPull(strings.NewReader(input), capacity)
		dst := make([]byte, p.buf.capacityBytes())

		var out []byte
		for {
			n, err := p.pull(dst)
			require.NoError(t, err)
			if n == 0 {
				break
			}
			chunk := dst[:n]
			assert.True(t, utf8.Valid(chunk), "chunk split a character: capacity %d", capacity)
			assert.LessOrEqual(t, utf8.RuneCount(chunk), capacity)
			out = append(out, chunk...)
		}
		assert.Equal(t, input, string(out), "capacity %d", capacity)
		assert.Equal(t, int64(utf8.RuneCountInString(input)), p.stats.RunesRead)
	}
}

func TestPullInvalidInput(t *testing.T) {
	t.Parallel()

	p := newTestPull(bufio.NewReader(strings.NewReader("a\xffb")), 16)
	dst := make([]byte, p.buf.capacityBytes())

	n, err := p.pull(dst)
	require.NoError(t, err)
	assert.Equal(t, "a�b", string(dst[:n]))
}

func TestPullShortDestination(t *testing.T) {
	t.Parallel()

	p := newTestPull(strings.NewReader("€€€"), 4)
	_, err := p.pull(make([]byte, 8))
	require.ErrorIs(t, err, io.ErrShortBuffer)

	// fatal: no retries
	_, err = p.pull(make([]byte, 16))
	require.ErrorIs(t, err, io.ErrShortBuffer)
}

func TestPullReadError(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk on fire")
	p := newTestPull(&failingRuneReader{r: strings.NewReader("abcdef"), after: 3, err: cause}, 2)
	dst := make([]byte, p.buf.capacityBytes())

	n, err := p.pull(dst)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(dst[:n]))

	_, err = p.pull(dst)
	var readErr *StreamReadError
	require.ErrorAs(t, err, &readErr)
	require.ErrorIs(t, err, cause)

	_, err = p.pull(dst)
	require.ErrorIs(t, err, cause)
}

func TestPullCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := newTestPull(strings.NewReader("abc"), 2)
	p.ctx = ctx
	cancel()

	_, err := p.pull(make([]byte, 8))
	require.ErrorIs(t, err, context.Canceled)
}
