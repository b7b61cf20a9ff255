package service

import (
	"context"
	"log"

	"helpdesk-backend/internal/model"
)

// EscalationService is the always-notify-both path used when a paid
// action partially fails: payment captured, downstream provisioning
// broken. The user gets sanitized copy, every admin gets the internal
// reason plus the raw diagnostic for triage.
type EscalationService struct {
	notifier *NotificationService
	alerter  *DiscordAlerter
}

func NewEscalationService(notifier *NotificationService, alerter *DiscordAlerter) *EscalationService {
	return &EscalationService{notifier: notifier, alerter: alerter}
}

// NotifyBoth never returns an error and never panics out: the caller
// has already recorded a successful payment and must not roll it back
// because notifying someone failed.
func (s *EscalationService) NotifyBoth(ctx context.Context, user *model.User, orderID, internalReason, userFacing, diagnostic string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Escalate] panic while notifying for order %s: %v", orderID, r)
		}
	}()

	kind := model.NotificationKind{Type: model.TypeSubscription, Event: model.EventProvisionFailed}
	staffReason := internalReason
	if diagnostic != "" {
		staffReason += "\n\nDiagnostic: " + diagnostic
	}
	data := TemplateData{
		Username:    user.Username,
		OrderID:     orderID,
		Reason:      staffReason,
		UserMessage: userFacing,
	}

	if err := s.notifier.NotifyUser(ctx, user, kind, data); err != nil {
		log.Printf("[Escalate] user notification failed for order %s: %v", orderID, err)
	}
	if err := s.notifier.NotifyAdmins(ctx, kind, data); err != nil {
		log.Printf("[Escalate] admin notification failed for order %s: %v", orderID, err)
	}
	s.alerter.Alert("Provisioning failed for order "+orderID, staffReason)
}
