package handler

import (
	"log"
	"strconv"

	"helpdesk-backend/internal/model"
	"helpdesk-backend/internal/repository"
	"helpdesk-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

type ConversationHandler struct {
	conversations *repository.ConversationRepository
	chat          *service.ChatService
}

func NewConversationHandler(conversations *repository.ConversationRepository, chat *service.ChatService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, chat: chat}
}

func viewer(c *fiber.Ctx) service.Identity {
	userID, _ := c.Locals("user_id").(string)
	username, _ := c.Locals("username").(string)
	role, _ := c.Locals("role").(string)
	return service.Identity{UserID: userID, Name: username, Role: role}
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ = strconv.Atoi(c.Query("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// List returns a page of conversations: all of them for staff, the
// caller's own otherwise.
// GET /api/v1/conversations?limit=20&offset=0
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	v := viewer(c)
	limit, offset := pagination(c)

	var (
		items []model.ConversationSummary
		err   error
	)
	if v.IsAdmin() {
		items, err = h.conversations.ListAll(c.Context(), limit, offset)
	} else {
		items, err = h.conversations.ListByUser(c.Context(), v.UserID, limit, offset)
	}
	if err != nil {
		log.Printf("[Conv] list failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to list conversations"})
	}
	if items == nil {
		items = []model.ConversationSummary{}
	}
	return c.JSON(fiber.Map{"conversations": items})
}

// Create opens a new conversation for the caller.
// POST /api/v1/conversations
func (h *ConversationHandler) Create(c *fiber.Ctx) error {
	v := viewer(c)
	var req struct {
		Subject string `json:"subject"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	conv, err := h.conversations.Create(c.Context(), v.UserID, req.Subject)
	if err != nil {
		log.Printf("[Conv] create failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create conversation"})
	}
	return c.Status(201).JSON(conv)
}

// History is the room-entry fetch of messages, oldest first, deleted
// excluded.
// GET /api/v1/conversations/:id/messages?limit=50
func (h *ConversationHandler) History(c *fiber.Ctx) error {
	v := viewer(c)
	room := c.Params("id")
	if !h.chat.CanAccess(c.Context(), room, v) {
		return c.Status(404).JSON(fiber.Map{"error": "conversation not found"})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	msgs, err := h.chat.History(c.Context(), room, limit)
	if err != nil {
		log.Printf("[Conv] history of %s failed: %v", room, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load history"})
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// Delete hard-deletes a conversation and its messages. Owner or staff
// only.
// DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Delete(c *fiber.Ctx) error {
	v := viewer(c)
	id := c.Params("id")

	conv, err := h.conversations.GetByID(c.Context(), id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(404).JSON(fiber.Map{"error": "conversation not found"})
		}
		log.Printf("[Conv] load %s failed: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load conversation"})
	}
	if !v.IsAdmin() && conv.UserID != v.UserID {
		// Hidden rather than forbidden, same as the websocket side.
		return c.Status(404).JSON(fiber.Map{"error": "conversation not found"})
	}

	if err := h.conversations.Delete(c.Context(), id); err != nil {
		log.Printf("[Conv] delete %s failed: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete conversation"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// DeleteAllForUser removes every conversation of one user. Staff only
// (routed behind RequireAdmin).
// DELETE /api/v1/users/:id/conversations
func (h *ConversationHandler) DeleteAllForUser(c *fiber.Ctx) error {
	userID := c.Params("id")
	deleted, err := h.conversations.DeleteAllForUser(c.Context(), userID)
	if err != nil {
		log.Printf("[Conv] delete-all for %s failed: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete conversations"})
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}
