package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helpdesk-backend/internal/model"
)

func testSession() *Session {
	s := New("ws://example.invalid/ws", "http://example.invalid", "tok")
	s.room = "c-1"
	return s
}

func messageEvent(t *testing.T, eventType string, m model.Message) model.WSEvent {
	t.Helper()
	return model.Marshal(eventType, m)
}

func TestApplyDeduplicatesByID(t *testing.T) {
	s := testSession()
	m := model.Message{ID: "m-1", ConversationID: "c-1", Text: "Hello", Status: model.MessageSent, CreatedAt: time.Now()}

	// Echo and room push carry the same message; the map keeps one.
	s.apply(messageEvent(t, model.EvReceiveMessage, m))
	s.apply(messageEvent(t, model.EvReceiveMessage, m))

	if got := s.Messages(); len(got) != 1 {
		t.Fatalf("messages = %d, want 1", len(got))
	}
}

func TestEditReplacesInPlace(t *testing.T) {
	s := testSession()
	m := model.Message{ID: "m-1", ConversationID: "c-1", Text: "Hello", Status: model.MessageSent, CreatedAt: time.Now()}
	s.apply(messageEvent(t, model.EvReceiveMessage, m))

	m.Text = "Hello there"
	m.Status = model.MessageEdited
	s.apply(messageEvent(t, model.EvMessageEdited, m))

	got := s.Messages()
	if len(got) != 1 {
		t.Fatalf("messages = %d, want 1", len(got))
	}
	if got[0].Text != "Hello there" || got[0].Status != model.MessageEdited {
		t.Fatalf("message = %+v, want edited text", got[0])
	}
}

func TestDeleteRemovesFromView(t *testing.T) {
	s := testSession()
	keep := model.Message{ID: "m-1", ConversationID: "c-1", Text: "keep", Status: model.MessageSent, CreatedAt: time.Now()}
	gone := model.Message{ID: "m-2", ConversationID: "c-1", Text: "gone", Status: model.MessageSent, CreatedAt: time.Now()}
	s.apply(messageEvent(t, model.EvReceiveMessage, keep))
	s.apply(messageEvent(t, model.EvReceiveMessage, gone))

	s.apply(model.Marshal(model.EvMessageDeleted, model.MessageDeletedPayload{MessageID: "m-2", Room: "c-1"}))

	got := s.Messages()
	if len(got) != 1 || got[0].ID != "m-1" {
		t.Fatalf("messages = %+v, want just m-1", got)
	}
}

func TestOtherRoomEventsAreIgnored(t *testing.T) {
	s := testSession()
	s.apply(messageEvent(t, model.EvReceiveMessage, model.Message{
		ID: "m-9", ConversationID: "c-other", Text: "wrong room", Status: model.MessageSent,
	}))
	if got := s.Messages(); len(got) != 0 {
		t.Fatalf("messages = %+v, want none", got)
	}

	s.apply(model.Marshal(model.EvRoomUsersUpdate, model.RoomUsersPayload{
		Room:    "c-other",
		Members: []model.RoomMember{{ConnID: "x", Name: "stranger"}},
	}))
	if got := s.Members(); len(got) != 0 {
		t.Fatalf("members = %+v, want none", got)
	}
}

func TestServerEchoReplacesOptimisticPending(t *testing.T) {
	s := testSession()
	s.mu.Lock()
	s.pending["pending-1"] = model.Message{
		ID: "pending-1", ConversationID: "c-1", Text: "Hello", Status: model.MessageSent, CreatedAt: time.Now(),
	}
	s.mu.Unlock()

	if got := s.Messages(); len(got) != 1 || got[0].ID != "pending-1" {
		t.Fatalf("messages before echo = %+v, want the pending copy", got)
	}

	s.apply(messageEvent(t, model.EvReceiveMessage, model.Message{
		ID: "m-1", ConversationID: "c-1", Text: "Hello", Status: model.MessageSent, CreatedAt: time.Now(),
	}))

	got := s.Messages()
	if len(got) != 1 || got[0].ID != "m-1" {
		t.Fatalf("messages after echo = %+v, want just m-1", got)
	}
}

func TestMessagesAreChronological(t *testing.T) {
	s := testSession()
	base := time.Now()
	// Applied out of order; the view sorts by creation time.
	for i, offset := range []int{2, 0, 1} {
		s.apply(messageEvent(t, model.EvReceiveMessage, model.Message{
			ID:             fmt.Sprintf("m-%d", i),
			ConversationID: "c-1",
			Text:           fmt.Sprintf("msg %d", offset),
			Status:         model.MessageSent,
			CreatedAt:      base.Add(time.Duration(offset) * time.Second),
		}))
	}

	got := s.Messages()
	if len(got) != 3 {
		t.Fatalf("messages = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Fatalf("out of order at %d: %+v", i, got)
		}
	}
}

func TestUnreadBadges(t *testing.T) {
	s := testSession()
	s.apply(model.Marshal(model.EvUnreadCount, model.UnreadCountPayload{Room: "c-1", Count: 3}))
	s.apply(model.Marshal(model.EvAdminUnreadCount, model.UnreadCountPayload{Count: 9}))

	if got := s.Unread("c-1"); got != 3 {
		t.Fatalf("room badge = %d, want 3", got)
	}
	if got := s.Unread(""); got != 9 {
		t.Fatalf("global badge = %d, want 9", got)
	}
}

func TestTypingPeersAgeOut(t *testing.T) {
	s := testSession()
	s.apply(model.Marshal(model.EvTyping, model.TypingPayload{Room: "c-1", Name: "alice", ConnID: "conn-1", IsTyping: true}))
	s.mu.Lock()
	s.typing["conn-2"] = typingPeer{name: "bob", at: time.Now().Add(-typingTTL - time.Second)}
	s.mu.Unlock()

	got := s.TypingPeers()
	if len(got) != 1 || got[0] != "alice" {
		t.Fatalf("typing peers = %v, want [alice]", got)
	}

	s.apply(model.Marshal(model.EvTyping, model.TypingPayload{Room: "c-1", Name: "alice", ConnID: "conn-1", IsTyping: false}))
	if got := s.TypingPeers(); len(got) != 0 {
		t.Fatalf("typing peers = %v, want none", got)
	}
}

// Two members can share a display name. One of them stopping must not
// clear the other's indicator, so typing state is keyed by connection.
func TestTypingPeersSurviveNameCollision(t *testing.T) {
	s := testSession()
	s.apply(model.Marshal(model.EvTyping, model.TypingPayload{Room: "c-1", Name: "alex", ConnID: "conn-1", IsTyping: true}))
	s.apply(model.Marshal(model.EvTyping, model.TypingPayload{Room: "c-1", Name: "alex", ConnID: "conn-2", IsTyping: true}))

	if got := s.TypingPeers(); len(got) != 1 || got[0] != "alex" {
		t.Fatalf("typing peers = %v, want [alex] once", got)
	}

	// First alex stops; the second is still typing.
	s.apply(model.Marshal(model.EvTyping, model.TypingPayload{Room: "c-1", Name: "alex", ConnID: "conn-1", IsTyping: false}))
	if got := s.TypingPeers(); len(got) != 1 || got[0] != "alex" {
		t.Fatalf("typing peers after one stop = %v, want [alex]", got)
	}

	s.apply(model.Marshal(model.EvTyping, model.TypingPayload{Room: "c-1", Name: "alex", ConnID: "conn-2", IsTyping: false}))
	if got := s.TypingPeers(); len(got) != 0 {
		t.Fatalf("typing peers after both stop = %v, want none", got)
	}
}

// Switching rooms quickly must never paint a slow first fetch over the
// second room's view. Each fetch carries the generation it was started
// under and is discarded if the room moved on.
func TestStaleHistoryFetchIsDiscarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		room := "c-1"
		text := "stale"
		if r.URL.Path == "/api/v1/conversations/c-2/messages" {
			room = "c-2"
			text = "fresh"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []model.Message{{
				ID: "m-" + room, ConversationID: room, Text: text,
				Status: model.MessageSent, CreatedAt: time.Now(),
			}},
		})
	}))
	defer srv.Close()

	s := New("ws://example.invalid/ws", srv.URL, "tok")
	s.mu.Lock()
	s.room = "c-2"
	s.roomGen = 2
	s.mu.Unlock()

	// The fetch started for c-1 under generation 1 completes after the
	// switch to c-2. Its result must be dropped.
	s.fetchHistory(context.Background(), "c-1", 1)
	if got := s.Messages(); len(got) != 0 {
		t.Fatalf("stale history applied: %+v", got)
	}

	// The current generation's fetch applies.
	s.fetchHistory(context.Background(), "c-2", 2)
	got := s.Messages()
	if len(got) != 1 || got[0].Text != "fresh" {
		t.Fatalf("messages = %+v, want the fresh fetch", got)
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	s := testSession()
	base := time.Now()
	for i := 0; i < 3; i++ {
		s.apply(model.Marshal(model.EvNotificationReceived, model.Notification{
			ID:        fmt.Sprintf("n-%d", i),
			Title:     fmt.Sprintf("title %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	got := s.Notifications()
	if len(got) != 3 || got[0].ID != "n-2" {
		t.Fatalf("notifications = %+v, want newest first", got)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s := testSession()
	var typed, all int
	unsubTyped := s.Subscribe(model.EvTyping, func(model.WSEvent) { typed++ })
	defer s.Subscribe("", func(model.WSEvent) { all++ })()

	s.dispatch(model.Marshal(model.EvTyping, model.TypingPayload{Room: "c-1", Name: "alice", IsTyping: true}))
	s.dispatch(model.Marshal(model.EvPong, nil))
	if typed != 1 || all != 2 {
		t.Fatalf("typed=%d all=%d, want 1 and 2", typed, all)
	}

	unsubTyped()
	s.dispatch(model.Marshal(model.EvTyping, model.TypingPayload{Room: "c-1", Name: "alice", IsTyping: true}))
	if typed != 1 {
		t.Fatalf("typed=%d after unsubscribe, want 1", typed)
	}
}

func TestDialAfterCloseFails(t *testing.T) {
	s := testSession()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Dial(context.Background()); err != ErrClosed {
		t.Fatalf("Dial after close: err = %v, want ErrClosed", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %v, want closed", s.State())
	}
	// Closing again is a no-op.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
