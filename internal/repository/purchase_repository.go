package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/scalable-coupon-system/internal/model"
	"github.com/fairyhunter13/scalable-coupon-system/internal/service"
)

// TxBeginner is implemented by pgxpool.Pool; satisfied by the real pool in
// production and a fake in tests.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PurchasePoolInterface defines the read operations needed outside a
// transaction by PurchaseRepository.
type PurchasePoolInterface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PurchaseRepository provides durable purchase data access using pgx. It
// implements reservation.PurchaseRepository.
type PurchaseRepository struct {
	beginner TxBeginner
	reader   PurchasePoolInterface
}

// NewPurchaseRepository creates a new PurchaseRepository with the given pool.
func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{beginner: pool, reader: pool}
}

// NewPurchaseRepositoryWithPool creates a new PurchaseRepository with a
// custom beginner/reader pair. Primarily used for testing.
func NewPurchaseRepositoryWithPool(beginner TxBeginner, reader PurchasePoolInterface) *PurchaseRepository {
	return &PurchaseRepository{beginner: beginner, reader: reader}
}

// RecordPurchase durably records a purchase and decrements the product's
// remaining stock in a single transaction: this is the last line of defense
// behind the coordination-node quorum. It uses an arbitrary-quantity
// conditional WHERE instead of a row lock, since the coordination layer
// already serializes writers per product.
// Returns service.ErrAlreadyPurchased on a (buyer_id, product_name) conflict,
// service.ErrInsufficientStock if the durable counter cannot cover quantity.
func (r *PurchaseRepository) RecordPurchase(ctx context.Context, buyerID, productName string, quantity int, totalPriceCents int64) (*model.Purchase, error) {
	tx, err := r.beginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // safe: no-op if committed

	var purchase model.Purchase
	err = tx.QueryRow(ctx,
		`INSERT INTO purchases (buyer_id, product_name, quantity, total_price_cents)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, buyer_id, product_name, quantity, total_price_cents, created_at`,
		buyerID, productName, quantity, totalPriceCents,
	).Scan(&purchase.ID, &purchase.BuyerID, &purchase.ProductName, &purchase.Quantity, &purchase.TotalPriceCents, &purchase.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, service.ErrAlreadyPurchased
		}
		return nil, fmt.Errorf("insert purchase: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE products SET remaining_amount = remaining_amount - $1 WHERE name = $2 AND remaining_amount >= $1`,
		quantity, productName)
	if err != nil {
		return nil, fmt.Errorf("decrement durable stock for %s: %w", productName, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, service.ErrInsufficientStock
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit purchase: %w", err)
	}
	return &purchase, nil
}

// GetBuyersByProduct retrieves all buyer IDs that have purchased productName.
// Returns an empty slice, not nil, when no purchases exist.
func (r *PurchaseRepository) GetBuyersByProduct(ctx context.Context, productName string) ([]string, error) {
	query := `SELECT buyer_id FROM purchases WHERE product_name = $1 ORDER BY created_at`

	rows, err := r.reader.Query(ctx, query, productName)
	if err != nil {
		return nil, fmt.Errorf("get purchases for product %s: %w", productName, err)
	}
	defer rows.Close()

	buyers := []string{}
	for rows.Next() {
		var buyerID string
		if err := rows.Scan(&buyerID); err != nil {
			return nil, fmt.Errorf("scan purchase buyer_id: %w", err)
		}
		buyers = append(buyers, buyerID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase rows: %w", err)
	}
	return buyers, nil
}
