package handler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"helpdesk-backend/internal/model"
	"helpdesk-backend/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const readDeadline = 60 * time.Second

type WSHandler struct {
	hub    *service.Hub
	tokens *service.TokenService
	chat   *service.ChatService
	unread *service.UnreadService
}

func NewWSHandler(hub *service.Hub, tokens *service.TokenService, chat *service.ChatService, unread *service.UnreadService) *WSHandler {
	return &WSHandler{hub: hub, tokens: tokens, chat: chat, unread: unread}
}

// Upgrade validates the token from the query string (account JWT or
// widget guest token) and hands the connection to the event loop.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		return c.Status(401).JSON(fiber.Map{"error": "token required"})
	}
	identity, err := h.tokens.Parse(token)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
	}

	c.Locals("identity", identity)
	return websocket.New(h.handleConnection)(c)
}

func (h *WSHandler) handleConnection(c *websocket.Conn) {
	identity, _ := c.Locals("identity").(service.Identity)

	client := &service.Client{
		Conn:    c,
		ID:      uuid.NewString(),
		UserID:  identity.UserID,
		GuestID: identity.GuestID,
		Name:    identity.Name,
		Role:    identity.Role,
		Send:    make(chan []byte, 256),
	}

	h.hub.Register(client)
	// Fail-safe: disconnect removes the connection from every room it
	// occupied and broadcasts fresh membership.
	defer h.hub.Unregister(client)

	// Writer goroutine
	go func() {
		defer c.Close()
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader loop. Each inbound event is one short-lived unit of work.
	c.SetReadDeadline(time.Now().Add(readDeadline))
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		c.SetReadDeadline(time.Now().Add(readDeadline))

		var event model.WSEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}
		h.dispatch(client, identity, event)
	}
}

func (h *WSHandler) dispatch(client *service.Client, identity service.Identity, event model.WSEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch event.Type {
	case model.EvPing:
		h.reply(client, model.Marshal(model.EvPong, nil))

	case model.EvJoinRoom:
		var p model.JoinRoomPayload
		if json.Unmarshal(event.Data, &p) != nil || p.Room == "" {
			return
		}
		if !h.chat.CanAccess(ctx, p.Room, identity) {
			log.Printf("[WS] %s denied join of %s", identity.Name, p.Room)
			return
		}
		h.hub.Join(p.Room, client)

	case model.EvLeaveRoom:
		var p model.JoinRoomPayload
		if json.Unmarshal(event.Data, &p) != nil || p.Room == "" {
			return
		}
		h.hub.Leave(p.Room, client)

	case model.EvSendMessage:
		var p model.SendMessagePayload
		if json.Unmarshal(event.Data, &p) != nil || p.Room == "" {
			return
		}
		if !h.hub.InRoom(p.Room, client.ID) {
			log.Printf("[WS] %s sent to unjoined room %s", identity.Name, p.Room)
			return
		}
		if _, err := h.chat.Send(ctx, p.Room, p.Text, identity); err != nil {
			log.Printf("[WS] send in %s failed: %v", p.Room, err)
		}

	case model.EvEditMessage:
		var p model.EditMessagePayload
		if json.Unmarshal(event.Data, &p) != nil || p.MessageID == "" {
			return
		}
		if _, err := h.chat.Edit(ctx, p.MessageID, p.Text, identity); err != nil {
			log.Printf("[WS] edit %s failed: %v", p.MessageID, err)
		}

	case model.EvDeleteMessage:
		var p model.DeleteMessagePayload
		if json.Unmarshal(event.Data, &p) != nil || p.MessageID == "" {
			return
		}
		if err := h.chat.Delete(ctx, p.MessageID, identity); err != nil {
			log.Printf("[WS] delete %s failed: %v", p.MessageID, err)
		}

	case model.EvMarkRead:
		var p model.MarkReadPayload
		if json.Unmarshal(event.Data, &p) != nil || p.Room == "" {
			return
		}
		count, err := h.unread.MarkRead(ctx, p.Room, identity)
		if err != nil {
			log.Printf("[WS] mark_read %s failed: %v", p.Room, err)
			return
		}
		// Direct reply so guests (unreachable by user id) still get
		// their number.
		h.reply(client, model.Marshal(model.EvUnreadCount, model.UnreadCountPayload{
			Room:  p.Room,
			Count: count,
		}))

	case model.EvTyping:
		var p model.TypingPayload
		if json.Unmarshal(event.Data, &p) != nil || p.Room == "" {
			return
		}
		if !h.hub.InRoom(p.Room, client.ID) {
			return
		}
		p.Name = identity.Name
		p.ConnID = client.ID
		// Ephemeral: everyone in the room except the typist.
		h.hub.ToRoomExcept(p.Room, client.ID, model.Marshal(model.EvTyping, p))

	default:
		log.Printf("[WS] unknown event type %q from %s", event.Type, identity.Name)
	}
}

func (h *WSHandler) reply(client *service.Client, ev model.WSEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}
