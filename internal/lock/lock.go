// Package lock implements the single-node and quorum (Redlock) locking
// primitives over a set of independent Redis coordination nodes: a named
// mutex acquired by writing a caller-unique token if the key is absent, with
// a bounded time-to-live, released by a compare-and-delete that only removes
// the key when the token matches.
package lock

import (
	"errors"

	"github.com/google/uuid"
)

// Token is a globally unique value bound to one acquisition attempt.
// Required for safe release: a caller can only delete a lock record it
// itself created.
type Token string

// NewToken returns a freshly generated, globally unique token.
func NewToken() Token {
	return Token(uuid.NewString())
}

var (
	// ErrBusy is returned when a lock acquisition attempt found the key already held.
	ErrBusy = errors.New("lock: busy")

	// ErrNotHeld is returned when a release or extend is attempted with a token that
	// does not match the current holder, or the key is already absent.
	ErrNotHeld = errors.New("lock: not held")

	// ErrNoQuorum is returned when fewer than the required majority of coordination
	// nodes granted the lock.
	ErrNoQuorum = errors.New("lock: quorum not reached")

	// ErrValidityExpired is returned when a quorum was reached but the computed
	// remaining validity (after clock-drift compensation) was not positive.
	ErrValidityExpired = errors.New("lock: validity expired before use")
)
