package env

import "bytes"

// CString returns the value of an encoded parameter without its trailing zero byte.
// ok is false when the parameter is absent.
func CString(p []byte) (s string, ok bool) {
	if len(p) == 0 {
		return "", false
	}
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(p), true
}
