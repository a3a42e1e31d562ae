package validation

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrMessageTooLarge is wrapped by ValidateText when a message body exceeds
// the configured byte limit.
var ErrMessageTooLarge = errors.New("message too large")

// Limits hold the configured payload bounds. Set once at startup from the
// effective config.
type Limits struct {
	MaxMessageBytes int64
}

var limits atomic.Pointer[Limits]

func SetLimits(l Limits) { limits.Store(&l) }

// ValidateText checks an outgoing message body against the configured
// limits. A zero limit means unbounded.
func ValidateText(text string) error {
	l := limits.Load()
	if l == nil || l.MaxMessageBytes <= 0 {
		return nil
	}
	if int64(len(text)) > l.MaxMessageBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrMessageTooLarge, len(text), l.MaxMessageBytes)
	}
	return nil
}

// ValidateCredentials checks registration input before any store traffic.
// Name must be at least 3 characters and password at least 6.
func ValidateCredentials(name, password string) error {
	if len(name) < 3 {
		return fmt.Errorf("name must be at least 3 characters")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	return nil
}
