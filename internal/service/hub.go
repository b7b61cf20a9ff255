package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"helpdesk-backend/internal/model"

	"github.com/gofiber/contrib/websocket"
)

// LobbyRoom is the pre-conversation room a widget visitor sits in
// before their first conversation exists.
const LobbyRoom = "lobby"

// Client is one live websocket connection. Exactly one of UserID and
// GuestID is set, mirroring message sender exclusivity.
type Client struct {
	Conn    *websocket.Conn
	ID      string
	UserID  string
	GuestID string
	Name    string
	Role    string
	Send    chan []byte
}

// Member is the presence snapshot entry for this client.
func (c *Client) Member() model.RoomMember {
	return model.RoomMember{
		ConnID:  c.ID,
		UserID:  c.UserID,
		GuestID: c.GuestID,
		Name:    c.Name,
		Role:    c.Role,
	}
}

// envelope is the bus payload: the client-facing event plus an
// optional connection to skip (typing excludes its sender).
type envelope struct {
	Exclude string        `json:"exclude,omitempty"`
	Event   model.WSEvent `json:"event"`
}

// Hub is the presence and room registry. It tracks which connections
// are in which room and delivers bus envelopes to local members.
// Nothing here persists; a restart starts from an empty registry.
type Hub struct {
	bus Bus

	mu          sync.RWMutex
	clients     map[string]*Client            // connID -> client
	rooms       map[string]map[string]*Client // room -> connID -> client
	clientRooms map[string]map[string]bool    // connID -> set of rooms
}

func NewHub(bus Bus) *Hub {
	h := &Hub{
		bus:         bus,
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		clientRooms: make(map[string]map[string]bool),
	}
	bus.Subscribe(h.deliver)
	return h
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.clientRooms[client.ID] = make(map[string]bool)
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[Hub] %s connected (total: %d)", client.Name, total)
}

// Unregister removes the connection from the registry and from every
// room it occupied, broadcasting fresh membership snapshots. Safe to
// call for an unknown client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	occupied := make([]string, 0, len(h.clientRooms[client.ID]))
	for room := range h.clientRooms[client.ID] {
		occupied = append(occupied, room)
		h.removeFromRoomLocked(room, client.ID)
	}
	delete(h.clients, client.ID)
	delete(h.clientRooms, client.ID)
	close(client.Send)
	total := len(h.clients)
	h.mu.Unlock()

	for _, room := range occupied {
		h.broadcastMembers(room)
	}
	log.Printf("[Hub] %s disconnected (total: %d)", client.Name, total)
}

// Join adds the connection to a room and broadcasts the updated
// membership snapshot to everyone in it. A connection holds at most
// one conversation room at a time (plus the lobby), so joining a new
// conversation leaves the previous one first.
func (h *Hub) Join(room string, client *Client) {
	var left []string

	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	if room != LobbyRoom {
		for occupied := range h.clientRooms[client.ID] {
			if occupied != LobbyRoom && occupied != room {
				h.removeFromRoomLocked(occupied, client.ID)
				left = append(left, occupied)
			}
		}
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[client.ID] = client
	h.clientRooms[client.ID][room] = true
	h.mu.Unlock()

	for _, r := range left {
		h.broadcastMembers(r)
	}
	h.broadcastMembers(room)
}

func (h *Hub) Leave(room string, client *Client) {
	h.mu.Lock()
	h.removeFromRoomLocked(room, client.ID)
	h.mu.Unlock()
	h.broadcastMembers(room)
}

func (h *Hub) removeFromRoomLocked(room, connID string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.clientRooms[connID]; ok {
		delete(rooms, room)
	}
}

// Members returns the current presence snapshot of a room.
func (h *Hub) Members(room string) []model.RoomMember {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := make([]model.RoomMember, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c.Member())
	}
	return members
}

// InRoom reports whether the connection currently occupies the room.
func (h *Hub) InRoom(room string, connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

func (h *Hub) broadcastMembers(room string) {
	h.ToRoom(room, model.Marshal(model.EvRoomUsersUpdate, model.RoomUsersPayload{
		Room:    room,
		Members: h.Members(room),
	}))
}

// --- Broadcaster: outbound side, published through the bus so a
// distributed deployment reaches members on other processes. ---

func (h *Hub) ToRoom(room string, ev model.WSEvent) {
	h.publish(RoomTopic(room), envelope{Event: ev})
}

func (h *Hub) ToRoomExcept(room, exceptConnID string, ev model.WSEvent) {
	h.publish(RoomTopic(room), envelope{Exclude: exceptConnID, Event: ev})
}

func (h *Hub) ToUser(userID string, ev model.WSEvent) {
	h.publish(UserTopic(userID), envelope{Event: ev})
}

func (h *Hub) ToRole(role string, ev model.WSEvent) {
	h.publish(RoleTopic(role), envelope{Event: ev})
}

func (h *Hub) publish(topic string, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := h.bus.Publish(context.Background(), topic, data); err != nil {
		log.Printf("[Hub] publish to %s failed: %v", topic, err)
	}
}

// deliver routes one bus envelope to the matching local connections.
func (h *Hub) deliver(topic string, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[Hub] bad envelope on %s: %v", topic, err)
		return
	}
	raw, err := json.Marshal(env.Event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	switch {
	case strings.HasPrefix(topic, "room:"):
		room := strings.TrimPrefix(topic, "room:")
		for _, c := range h.rooms[room] {
			if c.ID == env.Exclude {
				continue
			}
			h.sendLocked(c, raw)
		}
	case strings.HasPrefix(topic, "user:"):
		userID := strings.TrimPrefix(topic, "user:")
		for _, c := range h.clients {
			if c.UserID == userID {
				h.sendLocked(c, raw)
			}
		}
	case strings.HasPrefix(topic, "role:"):
		role := strings.TrimPrefix(topic, "role:")
		for _, c := range h.clients {
			if c.Role == role {
				h.sendLocked(c, raw)
			}
		}
	}
}

// sendLocked drops the event when the client's buffer is full rather
// than blocking the delivery path.
func (h *Hub) sendLocked(c *Client, data []byte) {
	select {
	case c.Send <- data:
	default:
	}
}
