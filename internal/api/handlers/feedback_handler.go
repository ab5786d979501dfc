package handlers

import (
	"jarvis/internal/dto"
	"jarvis/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type FeedbackHandler struct {
	assistant *service.AssistantService
	logger    *zap.Logger
}

func NewFeedbackHandler(assistant *service.AssistantService, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		assistant: assistant,
		logger:    logger,
	}
}

// Submit godoc
// @Summary Rate an assistant response
// @Description Records a 1-5 star rating for a previous chat response
// @Tags feedback
// @Accept json
// @Produce json
// @Param request body dto.FeedbackRequest true "Feedback request"
// @Success 200 {object} dto.FeedbackResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/feedback [post]
func (h *FeedbackHandler) Submit(c *fiber.Ctx) error {
	var req dto.FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.assistant.Feedback(c.UserContext(), &req)
	if err != nil {
		return respondError(c, h.logger, err, "Feedback")
	}

	return c.JSON(resp)
}
