package service

import (
	"context"
	"fmt"
	"log"

	"helpdesk-backend/internal/model"
)

// Broadcaster pushes events to live connections. Implemented by the
// Hub; tests substitute a recorder.
type Broadcaster interface {
	ToRoom(room string, ev model.WSEvent)
	ToRoomExcept(room, exceptConnID string, ev model.WSEvent)
	ToUser(userID string, ev model.WSEvent)
	ToRole(role string, ev model.WSEvent)
}

// NotificationStore is the persistence surface the pipeline needs.
type NotificationStore interface {
	Insert(ctx context.Context, n *model.Notification) (*model.Notification, error)
}

// AdminResolver returns the current set of staff recipients. Injected
// instead of a fixed admin id so notifications reach every admin and
// on-call rotations work without a restart.
type AdminResolver interface {
	Admins(ctx context.Context) ([]model.User, error)
}

// UserStore is the user lookup surface shared by services.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetAdmins(ctx context.Context) ([]model.User, error)
}

// StoreAdminResolver resolves admins from the user store.
type StoreAdminResolver struct {
	users UserStore
}

func NewStoreAdminResolver(users UserStore) *StoreAdminResolver {
	return &StoreAdminResolver{users: users}
}

func (r *StoreAdminResolver) Admins(ctx context.Context) ([]model.User, error) {
	return r.users.GetAdmins(ctx)
}

// NotificationService is the fan-out pipeline: resolve a template for
// (kind, role), persist the notification, push it to the recipient's
// live connections, and conditionally email.
type NotificationService struct {
	store  NotificationStore
	admins AdminResolver
	push   Broadcaster
	mailer Mailer
}

func NewNotificationService(store NotificationStore, admins AdminResolver, push Broadcaster, mailer Mailer) *NotificationService {
	return &NotificationService{store: store, admins: admins, push: push, mailer: mailer}
}

// NotifyUser creates and delivers one notification to an end user.
// Email is sent only when the user's email-preference flag is on, and
// an email failure never unwinds the persisted/pushed notification.
func (s *NotificationService) NotifyUser(ctx context.Context, user *model.User, kind model.NotificationKind, data TemplateData) error {
	tpl, err := userTemplate(kind, data)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, user, kind, tpl, user.EmailNotifications); err != nil {
		return fmt.Errorf("notify user %s: %w", user.ID, err)
	}
	return nil
}

// NotifyAdmins creates and delivers one notification per current
// admin. Admins are always emailed.
func (s *NotificationService) NotifyAdmins(ctx context.Context, kind model.NotificationKind, data TemplateData) error {
	tpl, err := adminTemplate(kind, data)
	if err != nil {
		return err
	}
	admins, err := s.admins.Admins(ctx)
	if err != nil {
		return fmt.Errorf("resolve admins: %w", err)
	}
	if len(admins) == 0 {
		log.Printf("[Notify] no admin recipients for %s", kind)
		return nil
	}

	var firstErr error
	for i := range admins {
		if err := s.deliver(ctx, &admins[i], kind, tpl, true); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("notify admin %s: %w", admins[i].ID, err)
		}
	}
	return firstErr
}

// NotifyBothRoles handles a dual-role event: exactly one notification
// for the user and one per admin. The two sides are independent; a
// failure on one side never blocks the other.
func (s *NotificationService) NotifyBothRoles(ctx context.Context, user *model.User, kind model.NotificationKind, data TemplateData) error {
	userErr := s.NotifyUser(ctx, user, kind, data)
	adminErr := s.NotifyAdmins(ctx, kind, data)
	if userErr != nil {
		return userErr
	}
	return adminErr
}

func (s *NotificationService) deliver(ctx context.Context, recipient *model.User, kind model.NotificationKind, tpl NotificationTemplate, email bool) error {
	n, err := s.store.Insert(ctx, &model.Notification{
		UserID: recipient.ID,
		Title:  tpl.Title,
		Body:   tpl.Body,
		Link:   tpl.Link,
		Type:   kind.Type,
		Event:  kind.Event,
	})
	if err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	s.push.ToUser(recipient.ID, model.Marshal(model.EvNotificationReceived, n))

	if email {
		if err := s.mailer.Send(ctx, recipient.Email, tpl.Title, tpl.Body); err != nil {
			// Email is best-effort; the notification stands.
			log.Printf("[Notify] email to %s failed for %s: %v", recipient.Email, kind, err)
		}
	}
	return nil
}
