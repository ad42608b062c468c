package bridge

import (
	"bufio"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// LookupCharset resolves a charset name such as "latin1" or "utf-16le".
func LookupCharset(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", name, err)
	}
	return enc, nil
}

// NewTextReader turns a byte stream in the given charset into a character stream.
// A nil encoding means the bytes are already UTF-8.
func NewTextReader(r io.Reader, enc encoding.Encoding) io.RuneReader {
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}
	return bufio.NewReader(r)
}

// TextWriter is a buffered character stream that encodes into a byte stream.
type TextWriter struct {
	bw *bufio.Writer
	tw *transform.Writer
}

var _ io.StringWriter = (*TextWriter)(nil)

// NewTextWriter writes characters to w in the given charset.  Characters the charset cannot
// represent are replaced.  A nil encoding writes UTF-8.
func NewTextWriter(w io.Writer, enc encoding.Encoding) *TextWriter {
	t := &TextWriter{}
	if enc != nil {
		t.tw = transform.NewWriter(w, encoding.ReplaceUnsupported(enc.NewEncoder()))
		w = t.tw
	}
	t.bw = bufio.NewWriter(w)
	return t
}

func (t *TextWriter) WriteString(s string) (int, error) {
	return t.bw.WriteString(s)
}

// Flush writes buffered characters through to the underlying writer.
func (t *TextWriter) Flush() error {
	return t.bw.Flush()
}

// Close flushes all buffered data, including the charset encoder's state.
// It does not close the underlying writer.
func (t *TextWriter) Close() (err error) {
	err = multierr.Append(err, t.bw.Flush())
	if t.tw != nil {
		err = multierr.Append(err, t.tw.Close())
	}
	return
}
