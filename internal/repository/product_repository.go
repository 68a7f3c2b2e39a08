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

// ProductPoolInterface defines the database operations needed by ProductRepository.
type ProductPoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProductRepository provides durable product data access using pgx. It
// implements reservation.ProductRepository.
type ProductRepository struct {
	pool ProductPoolInterface
}

// NewProductRepository creates a new ProductRepository with the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// NewProductRepositoryWithPool creates a new ProductRepository with a custom pool interface.
// Primarily used for testing.
func NewProductRepositoryWithPool(pool ProductPoolInterface) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// Insert inserts a new product, seeded with amount as the starting remaining
// stock. Returns service.ErrProductExists if the name is already taken.
func (r *ProductRepository) Insert(ctx context.Context, product *model.Product) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (name, amount, remaining_amount, price_cents) VALUES ($1, $2, $3, $4)`,
		product.Name, product.Amount, product.Amount, product.PriceCents)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrProductExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetProduct retrieves a product by name. Returns service.ErrProductNotFound
// if no such product exists, satisfying reservation.ProductRepository.
func (r *ProductRepository) GetProduct(ctx context.Context, name string) (*model.Product, error) {
	query := `SELECT name, amount, remaining_amount, price_cents, created_at FROM products WHERE name = $1`

	var product model.Product
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&product.Name,
		&product.Amount,
		&product.RemainingAmount,
		&product.PriceCents,
		&product.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, service.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product by name %s: %w", name, err)
	}
	return &product, nil
}
