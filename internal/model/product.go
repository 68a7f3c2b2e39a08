package model

import "time"

// Product represents an item offered in a flash sale.
type Product struct {
	Name            string    `json:"name"`
	Amount          int       `json:"amount"`
	RemainingAmount int       `json:"remaining_amount"`
	PriceCents      int64     `json:"price_cents"`
	CreatedAt       time.Time `json:"-"` // Not exposed in API
}

// ProductResponse is the API response DTO for GET /api/products/:name
type ProductResponse struct {
	Name            string   `json:"name"`
	Amount          int      `json:"amount"`
	RemainingAmount int      `json:"remaining_amount"`
	PriceCents      int64    `json:"price_cents"`
	PurchasedBy     []string `json:"purchased_by"`
}

// CreateProductRequest is the DTO for creating a product.
type CreateProductRequest struct {
	Name       string `json:"name" validate:"required,notblank,max=255"`
	Amount     *int   `json:"amount" validate:"required,gte=1"`
	PriceCents *int64 `json:"price_cents" validate:"omitempty,gte=0"`
}
