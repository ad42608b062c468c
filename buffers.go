package bridge

import "unicode/utf8"

const (
	// DefaultCapacity is the number of characters moved per pull when no capacity is configured.
	DefaultCapacity = 1024

	// bytesPerChar is the worst case UTF-8 expansion of a single character.
	bytesPerChar = utf8.UTFMax
)

// transcodeBuffers is the scratch area shared by the pull and push adapters of one session.
//
//	|`chars`             |`bytes`                   |`residual`              |
//	|--------------------|--------------------------|------------------------|
//	| capacity runes     | 4 * capacity bytes       | up to 3 pending bytes  |
//
// bytes is always large enough to hold a fully encoded batch of chars.
type transcodeBuffers struct {
	chars []rune
	bytes []byte

	// residual holds an incomplete trailing UTF-8 sequence of the last push.
	residual  [utf8.UTFMax - 1]byte
	nResidual int
}

func newTranscodeBuffers(capacity int) *transcodeBuffers {
	return &transcodeBuffers{
		chars: make([]rune, capacity),
		bytes: make([]byte, capacity*bytesPerChar),
	}
}

func (b *transcodeBuffers) capacityChars() int {
	return len(b.chars)
}

func (b *transcodeBuffers) capacityBytes() int {
	return len(b.bytes)
}

// reset drops decoder state left over from a previous conversion.
func (b *transcodeBuffers) reset() {
	b.nResidual = 0
}
