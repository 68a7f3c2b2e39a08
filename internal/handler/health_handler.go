package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisNodesPinger reports which configured coordination nodes could not be
// reached, by address.
type RedisNodesPinger interface {
	Ping(ctx context.Context) []string
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	pool Pinger

	redis     RedisNodesPinger
	nodeCount int
	// quorum is the minimum reachable node count required to report healthy.
	// Zero disables the Redis health check entirely (database-only health
	// check).
	quorum int
}

// NewHealthHandler creates a new HealthHandler with the given database pool.
func NewHealthHandler(pool Pinger) *HealthHandler {
	return &HealthHandler{pool: pool}
}

// NewHealthHandlerWithRedis creates a HealthHandler that also degrades to
// unhealthy when fewer than quorum coordination nodes are reachable.
func NewHealthHandlerWithRedis(pool Pinger, redis RedisNodesPinger, nodeCount, quorum int) *HealthHandler {
	return &HealthHandler{pool: pool, redis: redis, nodeCount: nodeCount, quorum: quorum}
}

// Check performs a health check by pinging the database and, if configured,
// every coordination node.
// Returns 200 OK with {"status": "healthy"} when everything required is reachable.
// Returns 503 Service Unavailable with {"status": "unhealthy", "error": "..."} otherwise.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	if err := h.pool.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed: database unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
	}

	if h.redis != nil && h.quorum > 0 {
		unreachable := h.redis.Ping(c.Context())
		reachable := h.nodeCount - len(unreachable)
		if reachable < h.quorum {
			log.Error().Strs("unreachable_nodes", unreachable).Msg("health check failed: coordination node quorum unavailable")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status":            "unhealthy",
				"error":             "coordination node quorum unavailable",
				"unreachable_nodes": unreachable,
			})
		}
	}

	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}
