package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"helpdesk-backend/internal/model"
)

var errNotFound = errors.New("not found")

func mustUnmarshal(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}

func containsText(data []byte, s string) bool {
	return bytes.Contains(data, []byte(s))
}

// --- broadcaster recorder ---

type pushRecord struct {
	scope   string // "room", "user", "role"
	target  string
	exclude string
	event   model.WSEvent
}

type fakePush struct {
	mu      sync.Mutex
	records []pushRecord
}

func (f *fakePush) ToRoom(room string, ev model.WSEvent) {
	f.add(pushRecord{scope: "room", target: room, event: ev})
}

func (f *fakePush) ToRoomExcept(room, except string, ev model.WSEvent) {
	f.add(pushRecord{scope: "room", target: room, exclude: except, event: ev})
}

func (f *fakePush) ToUser(userID string, ev model.WSEvent) {
	f.add(pushRecord{scope: "user", target: userID, event: ev})
}

func (f *fakePush) ToRole(role string, ev model.WSEvent) {
	f.add(pushRecord{scope: "role", target: role, event: ev})
}

func (f *fakePush) add(r pushRecord) {
	f.mu.Lock()
	f.records = append(f.records, r)
	f.mu.Unlock()
}

func (f *fakePush) byType(eventType string) []pushRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []pushRecord
	for _, r := range f.records {
		if r.event.Type == eventType {
			out = append(out, r)
		}
	}
	return out
}

// --- notification store ---

type fakeNotifStore struct {
	mu       sync.Mutex
	inserted []model.Notification
	failFor  map[string]error // recipient user id -> error
}

func (f *fakeNotifStore) Insert(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[n.UserID]; err != nil {
		return nil, err
	}
	out := *n
	out.ID = fmt.Sprintf("n-%d", len(f.inserted)+1)
	out.CreatedAt = time.Now()
	f.inserted = append(f.inserted, out)
	return &out, nil
}

func (f *fakeNotifStore) forUser(userID string) []model.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Notification
	for _, n := range f.inserted {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// --- user store ---

type fakeUserStore struct {
	users map[string]model.User
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errNotFound
	}
	return &u, nil
}

func (f *fakeUserStore) GetAdmins(ctx context.Context) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		if u.Role == model.RoleAdmin {
			out = append(out, u)
		}
	}
	return out, nil
}

// --- mailer ---

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeMailer) sentTo(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.sent {
		if m.to == addr {
			count++
		}
	}
	return count
}

// --- message store (in-memory semantics mirroring the SQL queries) ---

type fakeMessageStore struct {
	mu       sync.Mutex
	seq      int
	messages map[string]*model.Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[string]*model.Message)}
}

func (f *fakeMessageStore) Insert(ctx context.Context, m *model.Message) (*model.Message, error) {
	if (m.UserID == nil) == (m.GuestID == nil) {
		return nil, errors.New("sender exclusivity violated")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	out := *m
	out.ID = fmt.Sprintf("m-%d", f.seq)
	out.Status = model.MessageSent
	out.CreatedAt = time.Now()
	out.UpdatedAt = out.CreatedAt
	f.messages[out.ID] = &out
	copied := out
	return &copied, nil
}

func (f *fakeMessageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, errNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMessageStore) UpdateText(ctx context.Context, id, text string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.Status == model.MessageDeleted {
		return nil, errNotFound
	}
	m.Text = text
	m.Status = model.MessageEdited
	m.UpdatedAt = time.Now()
	copied := *m
	return &copied, nil
}

func (f *fakeMessageStore) SoftDelete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[id]; ok && m.Status != model.MessageDeleted {
		m.Status = model.MessageDeleted
	}
	return nil
}

func (f *fakeMessageStore) MarkRead(ctx context.Context, conversationID string, senderIsAdmin bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var flipped int64
	now := time.Now()
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.Status == model.MessageSent && m.SenderIsAdmin == senderIsAdmin {
			m.Status = model.MessageRead
			m.ReadAt = &now
			flipped++
		}
	}
	return flipped, nil
}

func (f *fakeMessageStore) CountUnread(ctx context.Context, conversationID string, senderIsAdmin bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.Status == model.MessageSent && m.SenderIsAdmin == senderIsAdmin {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageStore) CountUnreadTotal(ctx context.Context, senderIsAdmin bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.messages {
		if m.Status == model.MessageSent && m.SenderIsAdmin == senderIsAdmin {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageStore) History(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.Status != model.MessageDeleted {
			out = append(out, *m)
		}
	}
	return out, nil
}

// --- conversation store ---

type fakeConvStore struct {
	mu    sync.Mutex
	seq   int
	convs map[string]*model.Conversation
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{convs: make(map[string]*model.Conversation)}
}

func (f *fakeConvStore) Create(ctx context.Context, userID, subject string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	c := &model.Conversation{
		ID:        fmt.Sprintf("c-%d", f.seq),
		UserID:    userID,
		Subject:   subject,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.convs[c.ID] = c
	copied := *c
	return &copied, nil
}

func (f *fakeConvStore) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, errNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeConvStore) Touch(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.convs[id]; ok {
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeConvStore) SetRead(ctx context.Context, id string, read bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.convs[id]; ok {
		c.IsRead = read
	}
	return nil
}

func (f *fakeConvStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.convs, id)
	return nil
}

func (f *fakeConvStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, c := range f.convs {
		if c.UserID == userID {
			delete(f.convs, id)
			n++
		}
	}
	return n, nil
}

// --- provisioning ---

type fakeProvisioner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeProvisioner) Provision(ctx context.Context, userID, orderID, plan string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeSubStore struct {
	mu          sync.Mutex
	seq         int
	byOrder     map[string]*model.Subscription
	createCalls int
}

func newFakeSubStore() *fakeSubStore {
	return &fakeSubStore{byOrder: make(map[string]*model.Subscription)}
}

func (f *fakeSubStore) GetByOrderID(ctx context.Context, orderID string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byOrder[orderID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSubStore) Create(ctx context.Context, userID, orderID, plan string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if existing, ok := f.byOrder[orderID]; ok {
		copied := *existing
		return &copied, nil
	}
	f.seq++
	s := &model.Subscription{
		ID:        fmt.Sprintf("s-%d", f.seq),
		UserID:    userID,
		OrderID:   orderID,
		Plan:      plan,
		Status:    "active",
		CreatedAt: time.Now(),
	}
	f.byOrder[orderID] = s
	copied := *s
	return &copied, nil
}

// --- common fixture ---

func testUsers() *fakeUserStore {
	return &fakeUserStore{users: map[string]model.User{
		"u1": {ID: "u1", Username: "alice", Email: "alice@example.com", Role: model.RoleUser, EmailNotifications: true},
		"u2": {ID: "u2", Username: "bob", Email: "bob@example.com", Role: model.RoleUser, EmailNotifications: false},
		"a1": {ID: "a1", Username: "staff", Email: "staff@example.com", Role: model.RoleAdmin, EmailNotifications: true},
	}}
}
