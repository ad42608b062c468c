package env

import "io"

// pullReader adapts a PullFunc to io.Reader for engines that consume their whole input
// through standard parsers.
type pullReader struct {
	pull    PullFunc
	buf     []byte
	pending []byte
	eof     bool
}

// NewPullReader returns a reader that requests bufferSize byte chunks from pull.
func NewPullReader(pull PullFunc, bufferSize int) io.Reader {
	return &pullReader{
		pull: pull,
		buf:  make([]byte, bufferSize),
	}
}

func (r *pullReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(r.pending) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		n, err := r.pull(r.buf)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			r.eof = true
			return 0, io.EOF
		}
		r.pending = r.buf[:n]
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
