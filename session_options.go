package bridge

import (
	"fmt"

	"go.uber.org/zap"
)

// Option configures a Session.
type Option func(*sessionImpl) error

// WithCapacity sets the number of characters moved per pull.
// The engine is offered 4 bytes per character.
func WithCapacity(chars int) Option {
	return func(s *sessionImpl) error {
		if chars <= 0 {
			return fmt.Errorf("capacity must be positive: %d", chars)
		}
		s.capacity = chars
		return nil
	}
}

// WithLogger sets the logger for per-conversion debug records.
func WithLogger(l *zap.Logger) Option {
	return func(s *sessionImpl) error { s.logger = l; return nil }
}
