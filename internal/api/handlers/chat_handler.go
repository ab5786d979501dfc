package handlers

import (
	"context"
	"encoding/json"

	"jarvis/internal/dto"
	"jarvis/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ChatHandler struct {
	assistant *service.AssistantService
	logger    *zap.Logger
}

func NewChatHandler(assistant *service.AssistantService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		assistant: assistant,
		logger:    logger,
	}
}

// Chat godoc
// @Summary Send a message to the assistant
// @Description Answers from learned knowledge (offline), the online provider (online), or knowledge first then online (auto). Online failures fall back to offline.
// @Tags chat
// @Accept json
// @Produce json
// @Param request body dto.ChatRequest true "Chat request"
// @Success 200 {object} dto.ChatResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/chat [post]
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	resp, err := h.assistant.Chat(c.UserContext(), &req)
	if err != nil {
		return respondError(c, h.logger, err, "Chat")
	}

	return c.JSON(resp)
}

// Stream serves the chat contract over a websocket: every text frame is a
// dto.ChatRequest and is answered with a dto.ChatResponse or dto.ErrorResponse.
// The session id of the first answer is reused for later frames that omit it.
func (h *ChatHandler) Stream(conn *websocket.Conn) {
	sessionID := conn.Query("session_id")
	h.logger.Info("WebSocket connection opened", zap.String("session_id", sessionID))

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("WebSocket read failed", zap.Error(err))
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req dto.ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := conn.WriteJSON(dto.ErrorResponse{Error: "Invalid message"}); err != nil {
				break
			}
			continue
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}

		resp, err := h.assistant.Chat(context.Background(), &req)
		if err != nil {
			if err := conn.WriteJSON(dto.ErrorResponse{Error: err.Error()}); err != nil {
				break
			}
			continue
		}
		sessionID = resp.SessionID

		if err := conn.WriteJSON(resp); err != nil {
			h.logger.Warn("WebSocket write failed", zap.Error(err))
			break
		}
	}

	h.logger.Info("WebSocket connection closed", zap.String("session_id", sessionID))
}
