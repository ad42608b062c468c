package bridge

// ConvertOption configures a single conversion.
type ConvertOption func(*convertOptions) error

// param is an optional pass-through string.  Absent and empty are different values.
type param struct {
	value string
	set   bool
}

// encode returns nil for an absent parameter and the zero terminated bytes otherwise.
func (p param) encode() []byte {
	if !p.set {
		return nil
	}
	b := make([]byte, len(p.value)+1)
	copy(b, p.value)
	return b
}

type convertOptions struct {
	from     param
	to       param
	settings param

	stats *Stats
}

// WithFrom names the source format.  When omitted the engine picks its default.
func WithFrom(format string) ConvertOption {
	return func(o *convertOptions) error { o.from = param{format, true}; return nil }
}

// WithTo names the target format.  When omitted the engine picks its default.
func WithTo(format string) ConvertOption {
	return func(o *convertOptions) error { o.to = param{format, true}; return nil }
}

// WithSettings passes an engine specific settings blob.
func WithSettings(settings string) ConvertOption {
	return func(o *convertOptions) error { o.settings = param{settings, true}; return nil }
}

// WithStats stores the conversion's traffic counters into dst once it finishes,
// successfully or not.
func WithStats(dst *Stats) ConvertOption {
	return func(o *convertOptions) error { o.stats = dst; return nil }
}
