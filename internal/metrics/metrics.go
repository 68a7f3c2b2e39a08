// Package metrics exposes Prometheus instrumentation for the reservation
// coordinator. Lock-contention is labelled by product;
// per-node counters are labelled by node index, never by address, to keep
// cardinality bounded regardless of how many coordination nodes are
// configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LockAcquireAttempts counts every lock acquisition attempt, including
	// retries, per product.
	LockAcquireAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_lock_acquire_attempts_total",
		Help: "Total lock acquisition attempts per product, including retries.",
	}, []string{"product"})

	// LockAcquireFailures counts exhausted lock acquisition retries per
	// product, i.e. requests that ultimately surfaced ErrBusy or
	// ErrUnavailable.
	LockAcquireFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_lock_acquire_failures_total",
		Help: "Lock acquisitions that exhausted retries without success, per product.",
	}, []string{"product"})

	// ReserveOutcomes counts Reserve results by product and outcome, where
	// outcome is one of: ok, not_found, invalid, insufficient, busy,
	// inconsistent, already_purchased, unavailable, error (any other error).
	ReserveOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_outcomes_total",
		Help: "Reserve results by product and outcome.",
	}, []string{"product", "outcome"})

	// NodeDecrementOutcomes counts per-node TryDecrement outcomes, labelled
	// by node index (not address) to bound cardinality.
	NodeDecrementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_node_decrement_outcomes_total",
		Help: "TryDecrement outcomes per coordination node index.",
	}, []string{"node", "outcome"})

	// ReconcileTotal counts Reconcile invocations by product and result.
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_reconcile_total",
		Help: "Reconcile invocations by product and result.",
	}, []string{"product", "result"})
)
