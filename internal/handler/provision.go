package handler

import (
	"errors"
	"log"

	"helpdesk-backend/internal/model"
	"helpdesk-backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ProvisionHandler is the server-to-server ingress from the payment
// collaborator: paid orders to provision and business events to fan
// out. Both routes sit behind the X-Server-Key middleware.
type ProvisionHandler struct {
	provisioning *service.ProvisioningService
	notifier     *service.NotificationService
	users        service.UserStore
}

func NewProvisionHandler(provisioning *service.ProvisioningService, notifier *service.NotificationService, users service.UserStore) *ProvisionHandler {
	return &ProvisionHandler{provisioning: provisioning, notifier: notifier, users: users}
}

// Provision is called once payment for an order has been captured.
// Idempotent by order id: replaying the call returns the existing
// subscription.
// POST /api/v1/server/provision
func (h *ProvisionHandler) Provision(c *fiber.Ctx) error {
	var req struct {
		UserID  string `json:"user_id"`
		OrderID string `json:"order_id"`
		Plan    string `json:"plan"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.UserID == "" || req.OrderID == "" || req.Plan == "" {
		return c.Status(400).JSON(fiber.Map{"error": "user_id, order_id and plan are required"})
	}

	sub, err := h.provisioning.HandlePaidOrder(c.Context(), req.UserID, req.OrderID, req.Plan)
	if err != nil {
		if errors.Is(err, service.ErrProvisionFailed) {
			// Payment stands; escalation already ran. 502 tells the
			// caller the downstream side is the problem.
			return c.Status(502).JSON(fiber.Map{"error": "provisioning failed, support has been notified"})
		}
		if errors.Is(err, service.ErrUserNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "user not found"})
		}
		log.Printf("[Provision] order %s failed: %v", req.OrderID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to provision order"})
	}
	return c.JSON(sub)
}

// Event fans out a business event (registration, trial, subscription,
// payment) to both roles.
// POST /api/v1/server/events
func (h *ProvisionHandler) Event(c *fiber.Ctx) error {
	var req struct {
		Type    string `json:"type"`
		Event   string `json:"event"`
		UserID  string `json:"user_id"`
		OrderID string `json:"order_id"`
		Plan    string `json:"plan"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Type == "" || req.Event == "" || req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "type, event and user_id are required"})
	}

	user, err := h.users.GetByID(c.Context(), req.UserID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "user not found"})
	}

	kind := model.NotificationKind{
		Type:  model.NotificationType(req.Type),
		Event: model.NotificationEvent(req.Event),
	}
	data := service.TemplateData{
		Username: user.Username,
		OrderID:  req.OrderID,
		Plan:     req.Plan,
	}
	if err := h.notifier.NotifyBothRoles(c.Context(), user, kind, data); err != nil {
		if errors.Is(err, service.ErrUnknownKind) {
			return c.Status(400).JSON(fiber.Map{"error": "unknown notification kind"})
		}
		log.Printf("[Provision] event %s fan-out failed: %v", kind, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to deliver event"})
	}
	return c.JSON(fiber.Map{"ok": true})
}
