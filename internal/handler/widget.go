package handler

import (
	"log"

	"helpdesk-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

// WidgetHandler mints guest identities for the anonymous chat widget.
type WidgetHandler struct {
	tokens *service.TokenService
}

func NewWidgetHandler(tokens *service.TokenService) *WidgetHandler {
	return &WidgetHandler{tokens: tokens}
}

// Session issues a short-lived guest token so a visitor can open the
// websocket before having an account.
// POST /api/v1/widget/session
func (h *WidgetHandler) Session(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	_ = c.BodyParser(&req) // body optional

	token, guestID, err := h.tokens.IssueGuestToken(req.Name)
	if err != nil {
		log.Printf("[Widget] guest token failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create session"})
	}
	return c.JSON(fiber.Map{"token": token, "guest_id": guestID})
}
