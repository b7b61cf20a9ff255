package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"helpdesk-backend/internal/model"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// State is the session lifecycle. Transitions:
// Idle -> Connecting -> Open -> Idle (drop, may redial) or Closed.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

var ErrClosed = errors.New("session closed")

// typingTTL clears a peer's typing flag after silence, since the
// server never sends a "stopped typing after idle" event.
const typingTTL = 4 * time.Second

// Handler receives one event from the session's ordered queue.
type Handler func(model.WSEvent)

// Session is the client-state orchestrator: one websocket, one ordered
// event queue, and a local view of the active room that is always
// reconciled by identifier, never by array position. A Session
// survives reconnects; the message map deduplicates whatever the
// resync replays.
type Session struct {
	wsURL    string
	httpBase string
	token    string
	http     *http.Client

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	queue     chan model.WSEvent
	done      chan struct{}
	handlers  map[int]subscription
	nextSub   int
	room      string
	roomGen   int
	histStop  context.CancelFunc
	messages  map[string]model.Message
	members   []model.RoomMember
	unread    map[string]int
	notifs    map[string]model.Notification
	typing    map[string]typingPeer
	pending   map[string]model.Message // optimistic sends by temp id
}

// typingPeer tracks one typing connection. Keyed by connection id
// rather than display name, since names are not unique.
type typingPeer struct {
	name string
	at   time.Time
}

type subscription struct {
	eventType string
	fn        Handler
}

func New(wsURL, httpBase, token string) *Session {
	return &Session{
		wsURL:    wsURL,
		httpBase: httpBase,
		token:    token,
		http:     &http.Client{Timeout: 15 * time.Second},
		handlers: make(map[int]subscription),
		messages: make(map[string]model.Message),
		unread:   make(map[string]int),
		notifs:   make(map[string]model.Notification),
		typing:   make(map[string]typingPeer),
		pending:  make(map[string]model.Message),
	}
}

// Dial connects and starts the reader and queue loops. Reconnecting
// after a drop is just calling Dial again; local state is kept and
// reconciled against the resync.
func (s *Session) Dial(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateOpen:
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, s.wsURL+"?token="+s.token, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateOpen
	s.queue = make(chan model.WSEvent, 256)
	s.done = make(chan struct{})
	queue, done := s.queue, s.done
	s.mu.Unlock()

	go s.readLoop(conn, queue)
	go s.runQueue(queue, done)
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn, queue chan model.WSEvent) {
	defer close(queue)
	for {
		var ev model.WSEvent
		if err := wsjson.Read(context.Background(), conn, &ev); err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				if s.state == StateOpen {
					s.state = StateIdle
				}
			}
			s.mu.Unlock()
			return
		}
		queue <- ev
	}
}

// runQueue is the single ordered consumer: every push, whatever its
// channel, goes through here before any handler sees it.
func (s *Session) runQueue(queue chan model.WSEvent, done chan struct{}) {
	defer close(done)
	for ev := range queue {
		s.apply(ev)
		s.dispatch(ev)
	}
}

// Close ends the session for good.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	conn := s.conn
	s.conn = nil
	if s.histStop != nil {
		s.histStop()
		s.histStop = nil
	}
	s.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a handler for an event type ("" matches all).
// The returned function unsubscribes.
func (s *Session) Subscribe(eventType string, fn Handler) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.handlers[id] = subscription{eventType: eventType, fn: fn}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

func (s *Session) dispatch(ev model.WSEvent) {
	s.mu.Lock()
	var fns []Handler
	for _, sub := range s.handlers {
		if sub.eventType == "" || sub.eventType == ev.Type {
			fns = append(fns, sub.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Session) send(ev model.WSEvent) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

// EnterRoom joins a room and starts the history fetch for it. Any
// in-flight fetch for a previous room is cancelled; a fetch result is
// applied only if its room is still the active one, so rapid switching
// can never paint stale history.
func (s *Session) EnterRoom(ctx context.Context, room string) error {
	s.mu.Lock()
	if s.histStop != nil {
		s.histStop()
	}
	s.room = room
	s.roomGen++
	gen := s.roomGen
	fetchCtx, cancel := context.WithCancel(ctx)
	s.histStop = cancel
	// Entering a room resets the message view; history repopulates it.
	s.messages = make(map[string]model.Message)
	s.members = nil
	s.mu.Unlock()

	if err := s.send(model.Marshal(model.EvJoinRoom, model.JoinRoomPayload{Room: room})); err != nil {
		return err
	}

	go s.fetchHistory(fetchCtx, room, gen)
	return nil
}

// LeaveRoom leaves the active room and drops its local view.
func (s *Session) LeaveRoom(room string) error {
	s.mu.Lock()
	if s.room == room {
		s.room = ""
		if s.histStop != nil {
			s.histStop()
			s.histStop = nil
		}
	}
	s.mu.Unlock()
	return s.send(model.Marshal(model.EvLeaveRoom, model.JoinRoomPayload{Room: room}))
}

func (s *Session) fetchHistory(ctx context.Context, room string, gen int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/conversations/%s/messages", s.httpBase, room), nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.http.Do(req)
	if err != nil {
		return // cancelled or transport failure; a newer fetch owns the room
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	var body struct {
		Messages []model.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Only the latest request for the still-active room may apply.
	if s.roomGen != gen || s.room != room {
		return
	}
	for _, m := range body.Messages {
		s.messages[m.ID] = m
	}
}

// SendMessage performs an optimistic send: the text appears locally at
// once under a temporary id and is replaced when the server echo
// arrives. Returns the temporary id.
func (s *Session) SendMessage(room, text string) (string, error) {
	tempID := fmt.Sprintf("pending-%d", time.Now().UnixNano())
	s.mu.Lock()
	s.pending[tempID] = model.Message{
		ID:             tempID,
		ConversationID: room,
		Text:           text,
		Status:         model.MessageSent,
		CreatedAt:      time.Now(),
	}
	s.mu.Unlock()

	err := s.send(model.Marshal(model.EvSendMessage, model.SendMessagePayload{Room: room, Text: text}))
	if err != nil {
		s.mu.Lock()
		delete(s.pending, tempID)
		s.mu.Unlock()
	}
	return tempID, err
}

func (s *Session) MarkRead(room string) error {
	return s.send(model.Marshal(model.EvMarkRead, model.MarkReadPayload{Room: room}))
}

func (s *Session) SetTyping(room string, isTyping bool) error {
	return s.send(model.Marshal(model.EvTyping, model.TypingPayload{Room: room, IsTyping: isTyping}))
}

// apply folds one event into local state under the dedupe-by-id rule.
func (s *Session) apply(ev model.WSEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case model.EvReceiveMessage, model.EvMessageEdited:
		var m model.Message
		if json.Unmarshal(ev.Data, &m) != nil || m.ID == "" {
			return
		}
		if m.ConversationID != s.room {
			return
		}
		// Server echo of an optimistic send replaces the pending copy.
		for tempID, p := range s.pending {
			if p.Text == m.Text && p.ConversationID == m.ConversationID {
				delete(s.pending, tempID)
				break
			}
		}
		// Same id twice (echo + push) lands on one map slot.
		s.messages[m.ID] = m

	case model.EvMessageDeleted:
		var p model.MessageDeletedPayload
		if json.Unmarshal(ev.Data, &p) != nil {
			return
		}
		delete(s.messages, p.MessageID)

	case model.EvRoomUsersUpdate:
		var p model.RoomUsersPayload
		if json.Unmarshal(ev.Data, &p) != nil || p.Room != s.room {
			return
		}
		s.members = p.Members

	case model.EvUnreadCount:
		var p model.UnreadCountPayload
		if json.Unmarshal(ev.Data, &p) != nil {
			return
		}
		s.unread[p.Room] = p.Count

	case model.EvAdminUnreadCount:
		var p model.UnreadCountPayload
		if json.Unmarshal(ev.Data, &p) != nil {
			return
		}
		s.unread[""] = p.Count

	case model.EvNotificationReceived:
		var n model.Notification
		if json.Unmarshal(ev.Data, &n) != nil || n.ID == "" {
			return
		}
		s.notifs[n.ID] = n

	case model.EvTyping:
		var p model.TypingPayload
		if json.Unmarshal(ev.Data, &p) != nil || p.Room != s.room {
			return
		}
		key := p.ConnID
		if key == "" {
			key = p.Name
		}
		if p.IsTyping {
			s.typing[key] = typingPeer{name: p.Name, at: time.Now()}
		} else {
			delete(s.typing, key)
		}
	}
}

// Messages returns the active room's view in chronological order:
// confirmed messages first by creation time, then optimistic pending
// sends.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, 0, len(s.messages)+len(s.pending))
	for _, m := range s.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	for _, p := range s.pending {
		if p.ConversationID == s.room {
			out = append(out, p)
		}
	}
	return out
}

// Members returns the current presence snapshot of the active room.
func (s *Session) Members() []model.RoomMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RoomMember(nil), s.members...)
}

// Unread returns the stored count for a room ("" is the global badge).
func (s *Session) Unread(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[room]
}

// Notifications returns received notifications, newest first.
func (s *Session) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, 0, len(s.notifs))
	for _, n := range s.notifs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// TypingPeers returns who is currently typing in the active room,
// aging out entries the server will never explicitly clear.
func (s *Session) TypingPeers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	seen := make(map[string]bool)
	var out []string
	for key, peer := range s.typing {
		if now.Sub(peer.at) > typingTTL {
			delete(s.typing, key)
			continue
		}
		if !seen[peer.name] {
			seen[peer.name] = true
			out = append(out, peer.name)
		}
	}
	sort.Strings(out)
	return out
}
