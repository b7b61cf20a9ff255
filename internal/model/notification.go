package model

import "time"

// NotificationType is the domain category of a notification.
type NotificationType string

// NotificationEvent is the sub-kind within a type.
type NotificationEvent string

const (
	TypeRegistration NotificationType = "registration"
	TypeTrial        NotificationType = "trial"
	TypeSubscription NotificationType = "subscription"
	TypePayment      NotificationType = "payment"
	TypeLiveChat     NotificationType = "live_chat"
)

const (
	EventCreated         NotificationEvent = "created"
	EventStarted         NotificationEvent = "started"
	EventActivated       NotificationEvent = "activated"
	EventCanceled        NotificationEvent = "canceled"
	EventSucceeded       NotificationEvent = "succeeded"
	EventFailed          NotificationEvent = "failed"
	EventProvisionFailed NotificationEvent = "provision_failed"
	EventMessage         NotificationEvent = "message"
)

// NotificationKind is a closed (type, event) pair. Template dispatch
// switches exhaustively over the valid pairs and rejects the rest, so
// an unknown combination surfaces as an error instead of an empty
// notification.
type NotificationKind struct {
	Type  NotificationType
	Event NotificationEvent
}

// String renders the kind as "type.event" for logs.
func (k NotificationKind) String() string {
	return string(k.Type) + "." + string(k.Event)
}

// Notification is one persisted in-app notification. Only IsRead ever
// mutates after creation; rows disappear only through explicit
// recipient deletion.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Link      string            `json:"link,omitempty"`
	Type      NotificationType  `json:"type"`
	Event     NotificationEvent `json:"event"`
	IsRead    bool              `json:"is_read"`
	CreatedAt time.Time         `json:"created_at"`
}
