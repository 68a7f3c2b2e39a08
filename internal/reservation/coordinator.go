package reservation

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-coupon-system/internal/metrics"
	"github.com/fairyhunter13/scalable-coupon-system/internal/model"
	"github.com/fairyhunter13/scalable-coupon-system/internal/service"
	"github.com/fairyhunter13/scalable-coupon-system/internal/stockkv"
)

// ProductRepository is the durable product lookup the coordinator needs.
// Concrete implementation lives in internal/repository; defined here, in the
// consumer package, following the narrow-interface-per-consumer convention
// used across this codebase (see service.ProductRepositoryInterface).
type ProductRepository interface {
	GetProduct(ctx context.Context, name string) (*model.Product, error)
}

// PurchaseRepository persists a fulfilled reservation transactionally
// against the durable store, decrementing durable remaining stock in the
// same transaction as the purchase insert.
type PurchaseRepository interface {
	RecordPurchase(ctx context.Context, buyerID, productName string, quantity int, totalPriceCents int64) (*model.Purchase, error)
}

// Coordinator resolves a product, acquires the
// stock lock (single-node or quorum, via the injected Locker), replays the
// atomic decrement across the locked node set, persists the purchase, and
// compensates any partial cross-node state on failure.
type Coordinator struct {
	locker    Locker
	stocks    []*stockkv.AtomicStock
	products  ProductRepository
	purchases PurchaseRepository

	lockTTL      time.Duration
	safetyMargin time.Duration
	// nodeTimeout bounds every per-node RPC issued against the atomic stock
	// primitive (TryDecrement, Compensate), mirroring how lock.RedLock bounds
	// its own per-node lock RPCs.
	nodeTimeout time.Duration

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	// now is the clock source used to evaluate the lock-validity deadline.
	// Overridable in tests; defaults to time.Now, mirroring lock.RedLock's
	// own now field.
	now func() time.Time
}

// New builds a reservation coordinator. stocks must be indexed identically
// to the coordination nodes the Locker was constructed with: AcquiredLock.Nodes
// indices index directly into stocks.
func New(
	locker Locker,
	stocks []*stockkv.AtomicStock,
	products ProductRepository,
	purchases PurchaseRepository,
	lockTTL, safetyMargin, nodeTimeout time.Duration,
	maxRetries int,
	baseDelay, maxDelay time.Duration,
) *Coordinator {
	return &Coordinator{
		locker:       locker,
		stocks:       stocks,
		products:     products,
		purchases:    purchases,
		lockTTL:      lockTTL,
		safetyMargin: safetyMargin,
		nodeTimeout:  nodeTimeout,
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		now:          time.Now,
	}
}

func stockKeyFor(productName string) string {
	return "stock:" + productName
}

func lockNameFor(productName string) string {
	return "lock:stock:" + productName
}

// Reserve attempts to fulfill a purchase of quantity units of productName for
// buyerID. On success the purchase is durably recorded and the reservation
// taxonomy errors never surface. Returns service.ErrProductNotFound,
// service.ErrInvalidRequest, service.ErrInsufficientStock, service.ErrBusy,
// service.ErrInconsistent, service.ErrAlreadyPurchased, or
// service.ErrUnavailable.
func (c *Coordinator) Reserve(ctx context.Context, buyerID, productName string, quantity int) (*model.PurchaseResult, error) {
	if quantity <= 0 {
		return nil, service.ErrInvalidRequest
	}

	product, err := c.products.GetProduct(ctx, productName)
	if err != nil {
		c.recordOutcome(productName, err)
		return nil, err
	}

	lockName := lockNameFor(productName)
	acquired, err := c.acquireWithRetry(ctx, productName, lockName)
	if err != nil {
		c.recordOutcome(productName, err)
		return nil, err
	}
	defer c.locker.Release(context.Background(), lockName, acquired.Token)

	// deadline is the instant the lock's granted validity expires; every step
	// that would write durable state must complete, re-checked against
	// safetyMargin, before this point.
	deadline := c.now().Add(acquired.Validity)

	if acquired.Validity <= c.safetyMargin {
		// Not enough safe time remains to do useful work before the lock
		// might be considered expired by a racing acquirer; fail fast
		// rather than risk operating outside the held window.
		metrics.ReserveOutcomes.WithLabelValues(productName, "busy").Inc()
		return nil, service.ErrBusy
	}

	stockKey := stockKeyFor(productName)
	decremented, missing, insufficient, ok := c.replayDecrement(ctx, stockKey, int64(quantity), acquired.Nodes)

	quorum := acquired.Quorum
	if ok < quorum {
		c.compensate(context.Background(), stockKey, int64(quantity), decremented)
		switch {
		case missing >= quorum:
			metrics.ReserveOutcomes.WithLabelValues(productName, "not_found").Inc()
			return nil, service.ErrProductNotFound
		case insufficient >= quorum:
			metrics.ReserveOutcomes.WithLabelValues(productName, "insufficient").Inc()
			return nil, service.ErrInsufficientStock
		default:
			log.Warn().
				Str("product", productName).
				Int("granted_nodes", len(acquired.Nodes)).
				Int("ok", ok).
				Int("missing", missing).
				Int("insufficient", insufficient).
				Bool("reconcile_needed", true).
				Msg("partial decrement across coordination nodes")
			metrics.ReserveOutcomes.WithLabelValues(productName, "inconsistent").Inc()
			return nil, service.ErrInconsistent
		}
	}

	if !c.now().Before(deadline.Add(-c.safetyMargin)) {
		// The round trip through replayDecrement consumed the safely-held
		// window: the lock may already be considered expired by a racing
		// acquirer. Persisting now risks writing a purchase record against
		// a lock nobody still holds, so abort and compensate instead.
		c.compensate(context.Background(), stockKey, int64(quantity), decremented)
		metrics.ReserveOutcomes.WithLabelValues(productName, "busy").Inc()
		return nil, service.ErrBusy
	}

	purchase, err := c.purchases.RecordPurchase(ctx, buyerID, productName, quantity, int64(quantity)*product.PriceCents)
	if err != nil {
		c.compensate(context.Background(), stockKey, int64(quantity), decremented)
		if errors.Is(err, service.ErrAlreadyPurchased) {
			metrics.ReserveOutcomes.WithLabelValues(productName, "already_purchased").Inc()
			return nil, service.ErrAlreadyPurchased
		}
		c.recordOutcome(productName, err)
		return nil, err
	}

	metrics.ReserveOutcomes.WithLabelValues(productName, "ok").Inc()
	return &model.PurchaseResult{
		BuyerID:         purchase.BuyerID,
		ProductName:     purchase.ProductName,
		Quantity:        purchase.Quantity,
		TotalPriceCents: purchase.TotalPriceCents,
		ReservedAt:      purchase.CreatedAt,
	}, nil
}

// recordOutcome labels a terminal Reserve error for the reservation_outcomes_total
// metric. Errors already labelled at their point of origin (busy, inconsistent,
// insufficient, not_found via quorum loss, already_purchased) are not
// re-labelled here.
func (c *Coordinator) recordOutcome(productName string, err error) {
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		metrics.ReserveOutcomes.WithLabelValues(productName, "not_found").Inc()
	case errors.Is(err, service.ErrInvalidRequest):
		metrics.ReserveOutcomes.WithLabelValues(productName, "invalid").Inc()
	case errors.Is(err, service.ErrBusy):
		metrics.ReserveOutcomes.WithLabelValues(productName, "busy").Inc()
	case errors.Is(err, service.ErrUnavailable):
		metrics.ReserveOutcomes.WithLabelValues(productName, "unavailable").Inc()
	default:
		metrics.ReserveOutcomes.WithLabelValues(productName, "error").Inc()
	}
}

// replayDecrement calls TryDecrement on every node index in nodes and
// classifies the results. decremented holds the subset of nodes where the
// decrement actually applied, for compensation on a failed round.
func (c *Coordinator) replayDecrement(ctx context.Context, key string, qty int64, nodes []int) (decremented []int, missing, insufficient, ok int) {
	decremented = make([]int, 0, len(nodes))
	for _, idx := range nodes {
		nodeCtx, cancel := context.WithTimeout(ctx, c.nodeTimeout)
		outcome, _, err := c.stocks[idx].TryDecrement(nodeCtx, key, qty)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("node", c.stocks[idx].Addr()).Msg("stock decrement failed")
			continue
		}
		nodeLabel := strconv.Itoa(idx)
		switch outcome {
		case stockkv.Missing:
			missing++
			metrics.NodeDecrementOutcomes.WithLabelValues(nodeLabel, "missing").Inc()
		case stockkv.Insufficient:
			insufficient++
			metrics.NodeDecrementOutcomes.WithLabelValues(nodeLabel, "insufficient").Inc()
		case stockkv.OK:
			ok++
			decremented = append(decremented, idx)
			metrics.NodeDecrementOutcomes.WithLabelValues(nodeLabel, "ok").Inc()
		}
	}
	return decremented, missing, insufficient, ok
}

// compensate reverts a set of successful decrements, used when a round fails
// to reach quorum or when the durable persist step fails after the stock
// layer already committed.
func (c *Coordinator) compensate(ctx context.Context, key string, qty int64, nodes []int) {
	for _, idx := range nodes {
		nodeCtx, cancel := context.WithTimeout(ctx, c.nodeTimeout)
		_, err := c.stocks[idx].Compensate(nodeCtx, key, qty)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("node", c.stocks[idx].Addr()).Msg("compensation failed, stock may be stuck low until reconciled")
		}
	}
}

// acquireWithRetry retries lock acquisition with exponential backoff bounded
// by maxRetries, baseDelay, and maxDelay, matching config.RetryConfig.
func (c *Coordinator) acquireWithRetry(ctx context.Context, productName, name string) (*AcquiredLock, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.baseDelay
	bo.MaxInterval = c.maxDelay
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxRetries)), ctx)

	var acquired *AcquiredLock
	operation := func() error {
		metrics.LockAcquireAttempts.WithLabelValues(productName).Inc()
		a, err := c.locker.Acquire(ctx, name, c.lockTTL)
		if err != nil {
			return err
		}
		acquired = a
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		metrics.LockAcquireFailures.WithLabelValues(productName).Inc()
		if ctx.Err() != nil {
			return nil, service.ErrUnavailable
		}
		return nil, service.ErrBusy
	}
	return acquired, nil
}

// Reconcile resyncs the coordination-node stock counter for productName from
// the durable remaining amount: Postgres is ground truth, Redis is the
// admission cache. Called after an
// service.ErrInconsistent result, or on a schedule by an external reconciler.
func (c *Coordinator) Reconcile(ctx context.Context, productName string) error {
	product, err := c.products.GetProduct(ctx, productName)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues(productName, "error").Inc()
		return err
	}

	key := stockKeyFor(productName)
	var firstErr error
	for _, s := range c.stocks {
		if err := s.Seed(ctx, key, int64(product.RemainingAmount), 0); err != nil {
			log.Error().Err(err).Str("node", s.Addr()).Str("product", productName).Msg("reconcile seed failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		metrics.ReconcileTotal.WithLabelValues(productName, "error").Inc()
	} else {
		metrics.ReconcileTotal.WithLabelValues(productName, "ok").Inc()
	}
	return firstErr
}
