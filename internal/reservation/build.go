package reservation

import (
	"github.com/fairyhunter13/scalable-coupon-system/internal/config"
	"github.com/fairyhunter13/scalable-coupon-system/internal/lock"
	"github.com/fairyhunter13/scalable-coupon-system/internal/redisconn"
	"github.com/fairyhunter13/scalable-coupon-system/internal/stockkv"
)

// BuildLocker constructs the Locker and per-node AtomicStock slice matching
// cfg: the quorum strategy when cfg.UseQuorum is set, otherwise the
// single-node strategy against the first configured node. The two slices
// share the same index space, as Coordinator requires.
func BuildLocker(pool *redisconn.Pool, cfg config.RedisConfig) (Locker, []*stockkv.AtomicStock) {
	stocks := make([]*stockkv.AtomicStock, len(pool.Nodes))
	for i, n := range pool.Nodes {
		stocks[i] = stockkv.New(n.Client, n.Addr)
	}

	if !cfg.UseQuorum {
		single := lock.NewSingleNodeLock(pool.Nodes[0].Client, pool.Nodes[0].Addr)
		return NewSingleNodeLocker(single), stocks[:1]
	}

	nodeLocks := make([]*lock.SingleNodeLock, len(pool.Nodes))
	for i, n := range pool.Nodes {
		nodeLocks[i] = lock.NewSingleNodeLock(n.Client, n.Addr)
	}
	rl := lock.NewRedLock(nodeLocks, cfg.NodeTimeout(), cfg.DriftFactor, cfg.DriftFloor())
	return NewQuorumLocker(rl), stocks
}
