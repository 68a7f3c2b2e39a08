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

// ReservationCoordinator defines the interface for the reservation coordinator.
type ReservationCoordinator interface {
	Reserve(ctx context.Context, buyerID, productName string, quantity int) (*model.PurchaseResult, error)
}

// PurchaseHandler handles HTTP requests for purchase operations.
type PurchaseHandler struct {
	coordinator ReservationCoordinator
	validator   *validator.Validate
}

// NewPurchaseHandler creates a new PurchaseHandler with the given coordinator and validator.
func NewPurchaseHandler(coordinator ReservationCoordinator, v *validator.Validate) *PurchaseHandler {
	return &PurchaseHandler{coordinator: coordinator, validator: v}
}

// formatPurchaseValidationError converts validator errors to descriptive messages.
func formatPurchaseValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()

			switch field {
			case "BuyerID":
				if tag == "required" {
					return "invalid request: buyer_id is required"
				}
				if tag == "max" {
					return "invalid request: buyer_id exceeds maximum length of 255"
				}
				return "invalid request: buyer_id is invalid"
			case "ProductName":
				if tag == "required" {
					return "invalid request: product_name is required"
				}
				if tag == "max" {
					return "invalid request: product_name exceeds maximum length of 255"
				}
				return "invalid request: product_name is invalid"
			case "Quantity":
				if tag == "required" {
					return "invalid request: quantity is required"
				}
				if tag == "gte" {
					return "invalid request: quantity must be at least 1"
				}
				return "invalid request: quantity is invalid"
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

// CreatePurchase handles POST /api/purchases requests to reserve stock for a buyer.
func (h *PurchaseHandler) CreatePurchase(c *fiber.Ctx) error {
	var req model.PurchaseRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatPurchaseValidationError(err)})
	}

	result, err := h.coordinator.Reserve(c.Context(), req.BuyerID, req.ProductName, *req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProductNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product not found"})
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInsufficientStock):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, service.ErrAlreadyPurchased), errors.Is(err, service.ErrBusy):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, service.ErrInconsistent), errors.Is(err, service.ErrUnavailable):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
		}
		log.Error().
			Err(err).
			Str("buyer_id", req.BuyerID).
			Str("product_name", req.ProductName).
			Msg("failed to reserve purchase")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	log.Info().
		Str("buyer_id", result.BuyerID).
		Str("product_name", result.ProductName).
		Int("quantity", result.Quantity).
		Msg("purchase reserved successfully")

	return c.Status(fiber.StatusOK).JSON(result)
}
