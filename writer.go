package bridge

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"
)

// pushAdapter decodes output chunks from the engine and appends them to a character stream.
type pushAdapter struct {
	ctx   context.Context
	out   io.StringWriter
	buf   *transcodeBuffers
	stats *statsRecorder

	// n is the number of decoded runes waiting in buf.chars.
	n int
	// err is the first fatal error, every later push returns it again.
	err error
}

// push decodes src and writes the result to the output stream.
//
// Note that the engine is free to split a multi-byte character between two pushes,
// the incomplete tail is kept in the residual buffer until the next call.
func (p *pushAdapter) push(src []byte) error {
	if p.err != nil {
		return p.err
	}
	if len(src) == 0 {
		return nil
	}
	if err := p.ctx.Err(); err != nil {
		p.err = err
		return err
	}

	p.stats.recordPush(src)
	return p.decode(src, false)
}

// finish flushes a dangling partial character at the end of the conversion.
// Each of its bytes is written as U+FFFD.
func (p *pushAdapter) finish() error {
	if p.err != nil {
		return p.err
	}
	return p.decode(nil, true)
}

func (p *pushAdapter) decode(src []byte, eof bool) error {
	buf := p.buf

	// Complete the pending sequence first.
	var seq [utf8.UTFMax]byte
	for buf.nResidual > 0 && (len(src) > 0 || eof) {
		k := buf.nResidual
		copy(seq[:], buf.residual[:k])
		m := copy(seq[k:], src)
		window := seq[:k+m]

		if !eof && !utf8.FullRune(window) {
			// k+m < UTFMax here, so all of src fits into the residual.
			copy(buf.residual[k:], src)
			buf.nResidual = k + m
			return p.flushChars()
		}

		r, size := utf8.DecodeRune(window)
		if err := p.emit(r); err != nil {
			return err
		}
		if size >= k {
			src = src[size-k:]
			buf.nResidual = 0
		} else {
			copy(buf.residual[:], buf.residual[size:k])
			buf.nResidual = k - size
		}
	}

	for len(src) > 0 {
		if !eof && !utf8.FullRune(src) {
			buf.nResidual = copy(buf.residual[:], src)
			break
		}
		r, size := utf8.DecodeRune(src)
		if err := p.emit(r); err != nil {
			return err
		}
		src = src[size:]
	}

	return p.flushChars()
}

func (p *pushAdapter) emit(r rune) error {
	p.buf.chars[p.n] = r
	p.n++
	if p.n == p.buf.capacityChars() {
		return p.flushChars()
	}
	return nil
}

// flushChars writes the decoded runes to the output stream.
func (p *pushAdapter) flushChars() error {
	if p.n == 0 {
		return nil
	}

	s := string(p.buf.chars[:p.n])
	n, err := p.out.WriteString(s)
	if err == nil && n != len(s) {
		err = fmt.Errorf("partial write: %d out of %d", n, len(s))
	}
	if err != nil {
		p.err = &StreamWriteError{Err: err}
		return p.err
	}

	p.stats.RunesWritten += int64(p.n)
	p.n = 0
	return nil
}
