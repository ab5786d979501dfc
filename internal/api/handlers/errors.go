package handlers

import (
	"errors"

	"jarvis/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// respondError maps service errors to HTTP statuses. Unexpected errors are logged
// and reported without detail.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error, action string) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidRating):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrUnknownMessage), errors.Is(err, service.ErrSessionNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		status = fiber.StatusUnauthorized
	}

	if status == fiber.StatusInternalServerError {
		logger.Error(action+" failed", zap.Error(err))
		return c.Status(status).JSON(fiber.Map{
			"error": action + " failed",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
