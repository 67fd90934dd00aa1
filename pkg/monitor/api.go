package monitor

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-dms/pkg/journal"
	"github.com/teslashibe/go-dms/pkg/session"
)

// maxAlertLimit caps GET /alerts
const maxAlertLimit = 1000

// RegisterAPIRoutes registers the stream and alert REST API
func (m *Monitor) RegisterAPIRoutes(api fiber.Router) {
	streams := api.Group("/streams")

	// List streams
	streams.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"streams":     m.registry.List(),
			"count":       m.registry.Len(),
			"connections": m.GetConnectionInfos(),
		})
	})

	// Registry and transport stats
	streams.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sessions":  m.registry.Stats(),
			"transport": m.GetStats(),
		})
	})

	// Latest state of one stream
	streams.Get("/:id", func(c *fiber.Ctx) error {
		s, ok := m.registry.Get(c.Params("id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": session.ErrNotFound.Error()})
		}
		return c.JSON(s.Info())
	})

	// Restart pose calibration
	streams.Post("/:id/calibration/reset", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := m.registry.Reset(c.UserContext(), id); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "reset", "stream": id})
	})

	// Drop a stream and its engine
	streams.Delete("/:id", func(c *fiber.Ctx) error {
		if err := m.registry.Close(c.Params("id")); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "closed"})
	})

	// Alert history
	api.Get("/alerts", func(c *fiber.Ctx) error {
		if m.alerts == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "alert journal disabled"})
		}

		limit := journal.DefaultLimit
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
			}
			limit = min(n, maxAlertLimit)
		}

		entries, err := m.alerts.Recent(c.UserContext(), c.Query("stream"), limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"alerts": entries,
			"count":  len(entries),
		})
	})
}
