package handler

import (
	"log"

	"helpdesk-backend/internal/model"
	"helpdesk-backend/internal/repository"

	"github.com/gofiber/fiber/v2"
)

type NotificationHandler struct {
	notifications *repository.NotificationRepository
}

func NewNotificationHandler(notifications *repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns a page of the caller's notifications plus their unread
// count, newest first.
// GET /api/v1/notifications?limit=20&offset=0
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	v := viewer(c)
	limit, offset := pagination(c)

	items, err := h.notifications.ListByUser(c.Context(), v.UserID, limit, offset)
	if err != nil {
		log.Printf("[Notif] list failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to list notifications"})
	}
	if items == nil {
		items = []model.Notification{}
	}

	unread, err := h.notifications.CountUnread(c.Context(), v.UserID)
	if err != nil {
		log.Printf("[Notif] unread count failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to count notifications"})
	}

	return c.JSON(fiber.Map{"notifications": items, "unread": unread})
}

// MarkRead flips one notification. Owner-scoped, so a wrong id is a
// silent success.
// POST /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	v := viewer(c)
	if err := h.notifications.MarkRead(c.Context(), c.Params("id"), v.UserID); err != nil {
		log.Printf("[Notif] mark read failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to mark notification read"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// MarkAllRead flips everything unread for the caller.
// POST /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	v := viewer(c)
	if err := h.notifications.MarkAllRead(c.Context(), v.UserID); err != nil {
		log.Printf("[Notif] mark all read failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to mark notifications read"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Delete removes one notification by explicit recipient action.
// DELETE /api/v1/notifications/:id
func (h *NotificationHandler) Delete(c *fiber.Ctx) error {
	v := viewer(c)
	if err := h.notifications.Delete(c.Context(), c.Params("id"), v.UserID); err != nil {
		log.Printf("[Notif] delete failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete notification"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Clear removes every notification of the caller.
// DELETE /api/v1/notifications
func (h *NotificationHandler) Clear(c *fiber.Ctx) error {
	v := viewer(c)
	deleted, err := h.notifications.DeleteAll(c.Context(), v.UserID)
	if err != nil {
		log.Printf("[Notif] clear failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to clear notifications"})
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}
