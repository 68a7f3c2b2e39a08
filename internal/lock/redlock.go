package lock

import (
	"context"
	"math"
	"sync"
	"time"
)

// Lease describes a successfully acquired quorum lock.
type Lease struct {
	Name      string
	Token     Token
	Validity  time.Duration
	// Granted holds the indices (into RedLock.nodes) of the nodes that
	// granted the lock during acquisition. ReleaseQuorum does not rely on
	// this set — it always targets every configured node — but callers use
	// it to decide which nodes to replay the atomic decrement on.
	Granted []int
}

// RedLock is a quorum lock coordinating N independent, unreplicated Redis
// nodes. The lock is considered held iff strictly more than
// half the nodes grant a single-node lock on the same name within a bounded
// acquisition window, and the computed remaining validity is still positive
// after clock-drift compensation.
type RedLock struct {
	nodes       []*SingleNodeLock
	nodeTimeout time.Duration
	driftFactor float64
	driftFloor  time.Duration

	// now is the monotonic clock source used to measure acquisition elapsed
	// time. Overridable in tests; defaults to time.Now.
	now func() time.Time
}

// NewRedLock builds a quorum lock over the given per-node single-node locks.
func NewRedLock(nodes []*SingleNodeLock, nodeTimeout time.Duration, driftFactor float64, driftFloor time.Duration) *RedLock {
	return &RedLock{
		nodes:       nodes,
		nodeTimeout: nodeTimeout,
		driftFactor: driftFactor,
		driftFloor:  driftFloor,
		now:         time.Now,
	}
}

// N returns the number of configured coordination nodes.
func (r *RedLock) N() int {
	return len(r.nodes)
}

// Quorum returns floor(N/2)+1, the minimum grant count required to hold the lock.
func (r *RedLock) Quorum() int {
	return len(r.nodes)/2 + 1
}

type nodeOutcome struct {
	idx int
	err error
}

// AcquireQuorum attempts to acquire name on every configured node in
// parallel, each bounded by nodeTimeout, and returns a Lease iff at least
// Quorum() nodes granted the lock and the resulting validity is positive.
// On failure, a best-effort release is issued against every node that did
// grant, to purge partial state.
func (r *RedLock) AcquireQuorum(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	token := NewToken()
	start := r.now()

	results := make([]nodeOutcome, len(r.nodes))
	var wg sync.WaitGroup
	for i, n := range r.nodes {
		wg.Add(1)
		go func(i int, n *SingleNodeLock) {
			defer wg.Done()
			nodeCtx, cancel := context.WithTimeout(ctx, r.nodeTimeout)
			defer cancel()
			// A node that times out, errors, or reports busy counts as a
			// failure for that node but does not abort the round.
			results[i] = nodeOutcome{idx: i, err: acquireOn(nodeCtx, n.client, name, token, ttl)}
		}(i, n)
	}
	wg.Wait()

	granted := make([]int, 0, len(r.nodes))
	for _, res := range results {
		if res.err == nil {
			granted = append(granted, res.idx)
		}
	}

	elapsed := r.now().Sub(start)
	validity := r.computeValidity(ttl, elapsed)

	if len(granted) >= r.Quorum() && validity > 0 {
		return &Lease{Name: name, Token: token, Validity: validity, Granted: granted}, nil
	}

	// Best-effort purge of whatever partial state this round created.
	r.releaseGranted(context.Background(), name, token, granted)

	if len(granted) < r.Quorum() {
		return nil, ErrNoQuorum
	}
	return nil, ErrValidityExpired
}

// computeValidity applies the asymmetric clock-drift compensation:
// drift = ceil(ttl*driftFactor) + driftFloor, validity = ttl - elapsed - drift.
func (r *RedLock) computeValidity(ttl, elapsed time.Duration) time.Duration {
	drift := time.Duration(math.Ceil(float64(ttl)*r.driftFactor)) + r.driftFloor
	return ttl - elapsed - drift
}

// releaseGranted issues best-effort releases against exactly the given node
// indices. Used internally after a failed acquisition round.
func (r *RedLock) releaseGranted(ctx context.Context, name string, token Token, indices []int) {
	var wg sync.WaitGroup
	for _, idx := range indices {
		wg.Add(1)
		go func(n *SingleNodeLock) {
			defer wg.Done()
			nodeCtx, cancel := context.WithTimeout(ctx, r.nodeTimeout)
			defer cancel()
			_ = releaseOn(nodeCtx, n.client, name, token)
		}(r.nodes[idx])
	}
	wg.Wait()
}

// ReleaseQuorum issues compare-and-delete on every configured node, not just
// the set that granted during acquisition, because a node's reply may have
// been lost even though it did grant the lock. The release is
// considered successful once attempted on every node; per-node failures
// (including ErrNotHeld, expected when a node never granted or already
// expired the key) are tolerated, since TTL guarantees eventual cleanup.
func (r *RedLock) ReleaseQuorum(ctx context.Context, name string, token Token) {
	var wg sync.WaitGroup
	for _, n := range r.nodes {
		wg.Add(1)
		go func(n *SingleNodeLock) {
			defer wg.Done()
			nodeCtx, cancel := context.WithTimeout(ctx, r.nodeTimeout)
			defer cancel()
			_ = releaseOn(nodeCtx, n.client, name, token)
		}(n)
	}
	wg.Wait()
}

// ExtendQuorum compare-and-refreshes name on every node in parallel and
// recomputes validity under the same quorum rule as acquisition.
func (r *RedLock) ExtendQuorum(ctx context.Context, name string, token Token, newTTL time.Duration) (*Lease, error) {
	start := r.now()

	results := make([]nodeOutcome, len(r.nodes))
	var wg sync.WaitGroup
	for i, n := range r.nodes {
		wg.Add(1)
		go func(i int, n *SingleNodeLock) {
			defer wg.Done()
			nodeCtx, cancel := context.WithTimeout(ctx, r.nodeTimeout)
			defer cancel()
			results[i] = nodeOutcome{idx: i, err: extendOn(nodeCtx, n.client, name, token, newTTL)}
		}(i, n)
	}
	wg.Wait()

	granted := make([]int, 0, len(r.nodes))
	for _, res := range results {
		if res.err == nil {
			granted = append(granted, res.idx)
		}
	}

	elapsed := r.now().Sub(start)
	validity := r.computeValidity(newTTL, elapsed)

	if len(granted) >= r.Quorum() && validity > 0 {
		return &Lease{Name: name, Token: token, Validity: validity, Granted: granted}, nil
	}
	if len(granted) < r.Quorum() {
		return nil, ErrNoQuorum
	}
	return nil, ErrValidityExpired
}
