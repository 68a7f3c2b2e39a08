package model

import "time"

// Purchase is the durable record of a fulfilled reservation, persisted once
// the atomic decrement succeeds.
type Purchase struct {
	ID              int64     `json:"id"`
	BuyerID         string    `json:"buyer_id"`
	ProductName     string    `json:"product_name"`
	Quantity        int       `json:"quantity"`
	TotalPriceCents int64     `json:"total_price_cents"`
	CreatedAt       time.Time `json:"created_at"`
}

// PurchaseRequest is the DTO for POST /api/purchases.
type PurchaseRequest struct {
	BuyerID     string `json:"buyer_id" validate:"required,notblank,max=255"`
	ProductName string `json:"product_name" validate:"required,notblank,max=255"`
	Quantity    *int   `json:"quantity" validate:"required,gte=1"`
}

// PurchaseResult is returned to the caller on a successful reservation.
type PurchaseResult struct {
	BuyerID         string    `json:"buyer_id"`
	ProductName     string    `json:"product_name"`
	Quantity        int       `json:"quantity"`
	TotalPriceCents int64     `json:"total_price_cents"`
	ReservedAt      time.Time `json:"reserved_at"`
}
