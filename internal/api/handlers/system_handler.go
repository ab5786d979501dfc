package handlers

import (
	"jarvis/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type SystemHandler struct {
	assistant *service.AssistantService
	logger    *zap.Logger
}

func NewSystemHandler(assistant *service.AssistantService, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{
		assistant: assistant,
		logger:    logger,
	}
}

// Health godoc
// @Summary Service health
// @Description Liveness and online provider reachability
// @Tags system
// @Produce json
// @Success 200 {object} dto.HealthResponse
// @Router /health [get]
func (h *SystemHandler) Health(c *fiber.Ctx) error {
	return c.JSON(h.assistant.Health(c.UserContext()))
}

// Stats godoc
// @Summary Learning statistics
// @Tags system
// @Produce json
// @Success 200 {object} dto.StatsResponse
// @Router /api/v1/stats [get]
func (h *SystemHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(h.assistant.Stats())
}

// Session godoc
// @Summary Per-session counters
// @Tags system
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} dto.SessionResponse
// @Failure 404 {object} map[string]string
// @Router /api/v1/sessions/{id} [get]
func (h *SystemHandler) Session(c *fiber.Ctx) error {
	resp, err := h.assistant.Session(c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "Session lookup")
	}
	return c.JSON(resp)
}
