package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-coupon-system/internal/model"
)

// ProductRepositoryInterface defines the durable product data access the
// service needs.
type ProductRepositoryInterface interface {
	Insert(ctx context.Context, product *model.Product) error
	GetProduct(ctx context.Context, name string) (*model.Product, error)
}

// PurchaseRepositoryInterface defines the durable purchase data access the
// service needs for product detail lookups.
type PurchaseRepositoryInterface interface {
	GetBuyersByProduct(ctx context.Context, productName string) ([]string, error)
}

// StockSeeder mirrors the narrow slice of stockkv.AtomicStock the service
// needs to mirror durable stock onto a coordination node at product-creation
// time, without importing the stockkv package directly.
type StockSeeder interface {
	Seed(ctx context.Context, key string, qty int64, ttl time.Duration) error
	Addr() string
}

// ProductService provides business logic for product operations: creating a
// product (durably and across every coordination node's stock cache) and
// reading back its detail view.
type ProductService struct {
	productRepo  ProductRepositoryInterface
	purchaseRepo PurchaseRepositoryInterface
	stocks       []StockSeeder
}

// NewProductService creates a new ProductService.
func NewProductService(productRepo ProductRepositoryInterface, purchaseRepo PurchaseRepositoryInterface, stocks []StockSeeder) *ProductService {
	return &ProductService{productRepo: productRepo, purchaseRepo: purchaseRepo, stocks: stocks}
}

// Create durably inserts a product and mirrors its stock onto every
// coordination node. Returns ErrProductExists if the name is taken.
func (s *ProductService) Create(ctx context.Context, req *model.CreateProductRequest) error {
	if req == nil || req.Amount == nil {
		return ErrInvalidRequest
	}

	var priceCents int64
	if req.PriceCents != nil {
		priceCents = *req.PriceCents
	}

	product := &model.Product{
		Name:            req.Name,
		Amount:          *req.Amount,
		RemainingAmount: *req.Amount,
		PriceCents:      priceCents,
	}
	if err := s.productRepo.Insert(ctx, product); err != nil {
		return err
	}

	key := "stock:" + req.Name
	for _, stock := range s.stocks {
		if err := stock.Seed(ctx, key, int64(*req.Amount), 0); err != nil {
			log.Error().Err(err).Str("node", stock.Addr()).Str("product", req.Name).Msg("failed to seed stock on coordination node")
		}
	}
	return nil
}

// GetByName retrieves a product by name along with its purchaser list.
// Returns ErrProductNotFound if the product doesn't exist.
func (s *ProductService) GetByName(ctx context.Context, name string) (*model.ProductResponse, error) {
	product, err := s.productRepo.GetProduct(ctx, name)
	if err != nil {
		return nil, err
	}

	buyers, err := s.purchaseRepo.GetBuyersByProduct(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get buyers: %w", err)
	}

	return &model.ProductResponse{
		Name:            product.Name,
		Amount:          product.Amount,
		RemainingAmount: product.RemainingAmount,
		PriceCents:      product.PriceCents,
		PurchasedBy:     buyers,
	}, nil
}
