package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SingleNodeLock is a named mutex on one coordination node.
// It never blocks: contention yields ErrBusy immediately, and retries with
// backoff are the caller's responsibility.
type SingleNodeLock struct {
	client redis.Cmdable
	addr   string
}

// NewSingleNodeLock wraps a Redis client as a single-node lock primitive.
// addr is used only for observability labeling (metrics, logs).
func NewSingleNodeLock(client redis.Cmdable, addr string) *SingleNodeLock {
	return &SingleNodeLock{client: client, addr: addr}
}

// Addr returns the coordination node address this lock operates against.
func (l *SingleNodeLock) Addr() string {
	return l.addr
}

// Acquire attempts a set-if-absent-with-expiry of a freshly generated token
// under name. Returns the token on success, or ErrBusy on contention.
func (l *SingleNodeLock) Acquire(ctx context.Context, name string, ttl time.Duration) (Token, error) {
	token := NewToken()
	if err := acquireOn(ctx, l.client, name, token, ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Release removes the lock record only if token matches the current holder.
// Returns ErrNotHeld if the token does not match or the key is already gone;
// releasing another holder's lock is impossible by construction.
func (l *SingleNodeLock) Release(ctx context.Context, name string, token Token) error {
	return releaseOn(ctx, l.client, name, token)
}

// Extend refreshes the TTL only if token matches the current holder.
func (l *SingleNodeLock) Extend(ctx context.Context, name string, token Token, newTTL time.Duration) error {
	return extendOn(ctx, l.client, name, token, newTTL)
}
