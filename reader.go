package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// pullAdapter serves the engine's input requests from a character stream.
type pullAdapter struct {
	ctx   context.Context
	in    io.RuneReader
	buf   *transcodeBuffers
	stats *statsRecorder

	eof bool
	// err is the first fatal error, every later pull returns it again.
	err error
}

// pull reads up to capacity characters, encodes them as UTF-8 and copies the result into dst.
// It returns 0 only once the input stream is exhausted.
func (p *pullAdapter) pull(dst []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if err := p.ctx.Err(); err != nil {
		p.err = err
		return 0, err
	}

	c, err := p.readBlock()
	if err != nil {
		p.err = &StreamReadError{Err: err}
		return 0, p.err
	}

	b := p.encode(c)
	if len(dst) < b {
		p.err = fmt.Errorf("pull destination too small: %d < %d: %w", len(dst), b, io.ErrShortBuffer)
		return 0, p.err
	}
	copy(dst, p.buf.bytes[:b])

	p.stats.recordPull(p.buf.bytes[:b], c)
	return b, nil
}

// readBlock fills the character buffer until it is full or the stream ends.
func (p *pullAdapter) readBlock() (int, error) {
	if p.eof {
		return 0, nil
	}

	chars := p.buf.chars
	n := 0
	for n < len(chars) {
		r, _, err := p.in.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.eof = true
				return n, nil
			}
			return n, err
		}
		chars[n] = r
		n++
	}
	return n, nil
}

// encode writes the first n characters into the byte buffer.
// Runes that are not valid code points are replaced with U+FFFD.
func (p *pullAdapter) encode(n int) int {
	b := 0
	for _, r := range p.buf.chars[:n] {
		b += utf8.EncodeRune(p.buf.bytes[b:], r)
	}
	return b
}
