// Package stockkv implements the atomic stock primitive: a server-side
// guarded decrement and a compensating increment over a single
// coordination node's integer counter. Both operations are atomic with
// respect to any other operation on the same key on that node, via
// server-side Lua scripts.
package stockkv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Outcome is the tagged result of TryDecrement. Modeled as a sum type rather
// than a sentinel integer because misclassifying Missing as
// Insufficient is a latent safety bug: callers must compensate differently
// (a missing key cannot ever be compensated into existence).
type Outcome int

const (
	// Missing indicates the stock key does not exist on this node.
	Missing Outcome = iota
	// Insufficient indicates the counter exists but is below the requested quantity;
	// the counter was left untouched.
	Insufficient
	// OK indicates the decrement was applied.
	OK
)

func (o Outcome) String() string {
	switch o {
	case Missing:
		return "missing"
	case Insufficient:
		return "insufficient"
	case OK:
		return "ok"
	default:
		return "unknown"
	}
}

// AtomicStock wraps a single coordination node's stock counters.
type AtomicStock struct {
	client redis.Cmdable
	addr   string
}

// New wraps a Redis client as an atomic stock primitive against one node.
// addr is used only for observability labeling.
func New(client redis.Cmdable, addr string) *AtomicStock {
	return &AtomicStock{client: client, addr: addr}
}

// Addr returns the coordination node address this primitive operates against.
func (s *AtomicStock) Addr() string {
	return s.addr
}

// TryDecrement attempts to subtract qty from key as a single indivisible
// server-side step. Returns Missing if the counter is absent, Insufficient
// (leaving the counter untouched) if its value is below qty, or OK with the
// post-decrement value.
func (s *AtomicStock) TryDecrement(ctx context.Context, key string, qty int64) (Outcome, int64, error) {
	raw, err := decrementScript.Run(ctx, s.client, []string{key}, qty).Result()
	if err != nil {
		// A network/RPC failure here is ambiguous: the script may or may not
		// have executed server-side. The caller must treat this as
		// possibly-applied and re-read or compensate when rolling back.
		return Missing, 0, fmt.Errorf("try decrement %s: %w", key, err)
	}

	pair, ok := raw.([]interface{})
	if !ok || len(pair) != 2 {
		return Missing, 0, fmt.Errorf("try decrement %s: unexpected script result %#v", key, raw)
	}
	status, err := toInt64(pair[0])
	if err != nil {
		return Missing, 0, fmt.Errorf("try decrement %s: %w", key, err)
	}
	value, err := toInt64(pair[1])
	if err != nil {
		return Missing, 0, fmt.Errorf("try decrement %s: %w", key, err)
	}

	switch status {
	case -1:
		return Missing, 0, nil
	case 0:
		return Insufficient, value, nil
	case 1:
		return OK, value, nil
	default:
		return Missing, 0, fmt.Errorf("try decrement %s: unexpected status %d", key, status)
	}
}

// Compensate unconditionally increments key by qty, undoing a prior
// successful decrement. If key is absent, the compensation is a no-op and
// is reported via applied=false: compensation must never turn a missing key
// into a positive counter.
func (s *AtomicStock) Compensate(ctx context.Context, key string, qty int64) (applied bool, err error) {
	raw, err := compensateScript.Run(ctx, s.client, []string{key}, qty).Result()
	if err != nil {
		return false, fmt.Errorf("compensate %s: %w", key, err)
	}
	n, err := toInt64(raw)
	if err != nil {
		return false, fmt.Errorf("compensate %s: %w", key, err)
	}
	return n == 1, nil
}

// Seed sets key to qty with the given expiry, mirroring durable stock onto
// this node at product-creation time. An expiry <= 0 sets the key without
// expiration.
func (s *AtomicStock) Seed(ctx context.Context, key string, qty int64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, qty, ttl).Err(); err != nil {
		return fmt.Errorf("seed %s: %w", key, err)
	}
	return nil
}

// Peek reads the current counter value without mutating it. Used by health
// checks and reconciliation. Returns Missing if the key does not exist.
func (s *AtomicStock) Peek(ctx context.Context, key string) (Outcome, int64, error) {
	v, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return Missing, 0, nil
	}
	if err != nil {
		return Missing, 0, fmt.Errorf("peek %s: %w", key, err)
	}
	return OK, v, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
