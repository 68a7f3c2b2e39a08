package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-coupon-system/internal/model"
	"github.com/fairyhunter13/scalable-coupon-system/internal/service"
)

// ProductServiceInterface defines the interface for product business logic.
type ProductServiceInterface interface {
	Create(ctx context.Context, req *model.CreateProductRequest) error
	GetByName(ctx context.Context, name string) (*model.ProductResponse, error)
}

// ProductHandler handles HTTP requests for product operations.
type ProductHandler struct {
	service   ProductServiceInterface
	validator *validator.Validate
}

// NewProductHandler creates a new ProductHandler with the given service and validator.
func NewProductHandler(svc ProductServiceInterface, v *validator.Validate) *ProductHandler {
	return &ProductHandler{service: svc, validator: v}
}

// formatProductValidationError converts validator errors to descriptive messages.
func formatProductValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()

			switch field {
			case "Name":
				if tag == "required" {
					return "invalid request: name is required"
				}
				if tag == "notblank" {
					return "invalid request: name cannot be whitespace only"
				}
				if tag == "max" {
					return "invalid request: name exceeds maximum length of 255"
				}
				return "invalid request: name is invalid"
			case "Amount":
				if tag == "required" {
					return "invalid request: amount is required"
				}
				if tag == "gte" {
					return "invalid request: amount must be at least 1"
				}
				return "invalid request: amount is invalid"
			case "PriceCents":
				if tag == "gte" {
					return "invalid request: price_cents must be non-negative"
				}
				return "invalid request: price_cents is invalid"
			default:
				if tag == "required" {
					return "invalid request: " + field + " is required"
				}
				if tag == "max" {
					return "invalid request: " + field + " exceeds maximum length"
				}
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// CreateProduct handles POST /api/products requests to create a new product.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req model.CreateProductRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatProductValidationError(err)})
	}

	if err := h.service.Create(c.Context(), &req); err != nil {
		if errors.Is(err, service.ErrProductExists) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "product already exists"})
		}
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
		}
		log.Error().Err(err).Str("product_name", req.Name).Msg("failed to create product")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.Status(fiber.StatusCreated).Send(nil)
}

// GetProduct handles GET /api/products/:name requests to retrieve product details.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: name is required"})
	}

	product, err := h.service.GetByName(c.Context(), name)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product not found"})
		}
		log.Error().Err(err).Str("product_name", name).Msg("failed to get product")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	log.Info().
		Str("product_name", product.Name).
		Int("remaining_amount", product.RemainingAmount).
		Int("purchase_count", len(product.PurchasedBy)).
		Msg("product retrieved")

	return c.JSON(product)
}
