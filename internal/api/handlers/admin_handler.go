package handlers

import (
	"jarvis/internal/dto"
	"jarvis/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AdminHandler struct {
	adminService *service.AdminService
	assistant    *service.AssistantService
	logger       *zap.Logger
}

func NewAdminHandler(adminService *service.AdminService, assistant *service.AssistantService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		assistant:    assistant,
		logger:       logger,
	}
}

// Login godoc
// @Summary Admin login
// @Description Exchanges the admin password for a bearer token
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.AdminLoginRequest true "Login request"
// @Success 200 {object} dto.AdminLoginResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/admin/login [post]
func (h *AdminHandler) Login(c *fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.adminService.Login(c.UserContext(), &req)
	if err != nil {
		if err == service.ErrUnauthorized {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid credentials",
			})
		}
		h.logger.Error("Admin login failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
		})
	}

	return c.JSON(resp)
}

// Improve godoc
// @Summary Run an improvement cycle now
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.CycleReportResponse
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/admin/improve [post]
func (h *AdminHandler) Improve(c *fiber.Ctx) error {
	resp, err := h.assistant.Improve(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, err, "Improvement cycle")
	}

	h.logger.Info("Improvement cycle run by admin",
		zap.Any("subject", c.Locals("subject")),
		zap.Int("entries_created", resp.EntriesCreated),
	)
	return c.JSON(resp)
}

// Knowledge godoc
// @Summary List learned knowledge entries
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.KnowledgeListResponse
// @Failure 401 {object} map[string]string
// @Router /api/v1/admin/knowledge [get]
func (h *AdminHandler) Knowledge(c *fiber.Ctx) error {
	return c.JSON(h.assistant.Knowledge())
}
