// Package reservation implements the reservation coordinator: the component
// that ties the lock primitives and the atomic stock primitive together into
// a single Reserve operation with the exactly-once-per-stock guarantee.
package reservation

import (
	"context"
	"time"

	"github.com/fairyhunter13/scalable-coupon-system/internal/lock"
)

// AcquiredLock is the strategy-neutral result of acquiring the stock lock for
// a product, regardless of whether the single-node or quorum strategy is in
// effect.
type AcquiredLock struct {
	Token Token
	// Validity is the remaining time the lock is safely held for.
	Validity time.Duration
	// Nodes holds the indices of the coordination nodes the lock is held on.
	// The coordinator replays TryDecrement on exactly these nodes, in the
	// same index space as the AtomicStock slice it was constructed with.
	Nodes []int
	// Quorum is the minimum grant/decrement count required for this lock to
	// be considered held, i.e. floor(N/2)+1 over the strategy's full
	// configured node count N - not derived from len(Nodes), since a lock
	// granted on exactly a quorum of a larger N must not lower the bar to a
	// majority of the (smaller) granted set.
	Quorum int
}

// Token aliases lock.Token so callers outside this package never need to
// import internal/lock directly.
type Token = lock.Token

// Locker abstracts the single-node and quorum locking strategies behind one
// interface, so the coordinator does not need to branch on which is active.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (*AcquiredLock, error)
	Release(ctx context.Context, name string, token Token)
}

// singleNodeLocker adapts a lock.SingleNodeLock to the Locker interface. Its
// node set is always {0}: there is exactly one coordination node.
type singleNodeLocker struct {
	l *lock.SingleNodeLock
}

// NewSingleNodeLocker wraps a single-node lock for use by a Coordinator.
func NewSingleNodeLocker(l *lock.SingleNodeLock) Locker {
	return &singleNodeLocker{l: l}
}

func (s *singleNodeLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (*AcquiredLock, error) {
	token, err := s.l.Acquire(ctx, name, ttl)
	if err != nil {
		return nil, err
	}
	return &AcquiredLock{Token: token, Validity: ttl, Nodes: []int{0}, Quorum: 1}, nil
}

func (s *singleNodeLocker) Release(ctx context.Context, name string, token Token) {
	_ = s.l.Release(ctx, name, token)
}

// quorumLocker adapts a lock.RedLock to the Locker interface.
type quorumLocker struct {
	rl *lock.RedLock
}

// NewQuorumLocker wraps a Redlock quorum lock for use by a Coordinator.
func NewQuorumLocker(rl *lock.RedLock) Locker {
	return &quorumLocker{rl: rl}
}

func (q *quorumLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (*AcquiredLock, error) {
	lease, err := q.rl.AcquireQuorum(ctx, name, ttl)
	if err != nil {
		return nil, err
	}
	return &AcquiredLock{Token: lease.Token, Validity: lease.Validity, Nodes: lease.Granted, Quorum: q.rl.Quorum()}, nil
}

func (q *quorumLocker) Release(ctx context.Context, name string, token Token) {
	q.rl.ReleaseQuorum(ctx, name, token)
}
