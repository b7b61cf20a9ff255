package service

import (
	"fmt"

	"helpdesk-backend/internal/model"
)

// ErrUnknownKind rejects (type, event) pairs outside the closed set.
// Dispatching through this switch instead of a string-keyed map means
// an unknown combination is an error, not an empty notification.
var ErrUnknownKind = fmt.Errorf("unknown notification kind")

// NotificationTemplate is the rendered {title, body, link} triple.
type NotificationTemplate struct {
	Title string
	Body  string
	Link  string
}

// TemplateData carries the event payload fields templates draw from.
// Reason is staff-only; UserMessage is the sanitized user-facing text
// for failure kinds and never contains diagnostics.
type TemplateData struct {
	Username       string
	OrderID        string
	Plan           string
	Preview        string
	ConversationID string
	Reason         string
	UserMessage    string
}

// userTemplate renders the end-user copy for a kind.
func userTemplate(k model.NotificationKind, d TemplateData) (NotificationTemplate, error) {
	switch k {
	case model.NotificationKind{Type: model.TypeRegistration, Event: model.EventCreated}:
		return NotificationTemplate{
			Title: "Welcome aboard!",
			Body:  fmt.Sprintf("Hi %s, your account is ready.", d.Username),
			Link:  "/account",
		}, nil
	case model.NotificationKind{Type: model.TypeTrial, Event: model.EventStarted}:
		return NotificationTemplate{
			Title: "Your trial has started",
			Body:  fmt.Sprintf("Your %s trial is now active. Enjoy!", d.Plan),
			Link:  "/account/subscription",
		}, nil
	case model.NotificationKind{Type: model.TypeSubscription, Event: model.EventCreated},
		model.NotificationKind{Type: model.TypeSubscription, Event: model.EventActivated}:
		return NotificationTemplate{
			Title: "Subscription active",
			Body:  fmt.Sprintf("Your %s subscription (order %s) is active.", d.Plan, d.OrderID),
			Link:  "/account/subscription",
		}, nil
	case model.NotificationKind{Type: model.TypeSubscription, Event: model.EventCanceled}:
		return NotificationTemplate{
			Title: "Subscription canceled",
			Body:  "Your subscription has been canceled. You can resubscribe at any time.",
			Link:  "/account/subscription",
		}, nil
	case model.NotificationKind{Type: model.TypeSubscription, Event: model.EventProvisionFailed}:
		// User never sees the raw diagnostic.
		body := d.UserMessage
		if body == "" {
			body = fmt.Sprintf("Your payment for order %s was received, but setup is taking longer than expected. Our support team has been notified; please contact support if you have questions.", d.OrderID)
		}
		return NotificationTemplate{
			Title: "We're setting up your order",
			Body:  body,
			Link:  "/support",
		}, nil
	case model.NotificationKind{Type: model.TypePayment, Event: model.EventSucceeded}:
		return NotificationTemplate{
			Title: "Payment received",
			Body:  fmt.Sprintf("We received your payment for order %s. Thank you!", d.OrderID),
			Link:  "/account/billing",
		}, nil
	case model.NotificationKind{Type: model.TypePayment, Event: model.EventFailed}:
		return NotificationTemplate{
			Title: "Payment failed",
			Body:  fmt.Sprintf("Your payment for order %s did not go through. Please update your payment method.", d.OrderID),
			Link:  "/account/billing",
		}, nil
	case model.NotificationKind{Type: model.TypeLiveChat, Event: model.EventMessage}:
		return NotificationTemplate{
			Title: "New reply from support",
			Body:  d.Preview,
			Link:  "/support?conversation=" + d.ConversationID,
		}, nil
	}
	return NotificationTemplate{}, fmt.Errorf("%w: %s (user)", ErrUnknownKind, k)
}

// adminTemplate renders the staff copy for a kind.
func adminTemplate(k model.NotificationKind, d TemplateData) (NotificationTemplate, error) {
	switch k {
	case model.NotificationKind{Type: model.TypeRegistration, Event: model.EventCreated}:
		return NotificationTemplate{
			Title: "New registration",
			Body:  fmt.Sprintf("%s just registered.", d.Username),
			Link:  "/admin/users",
		}, nil
	case model.NotificationKind{Type: model.TypeTrial, Event: model.EventStarted}:
		return NotificationTemplate{
			Title: "Trial started",
			Body:  fmt.Sprintf("%s started a %s trial.", d.Username, d.Plan),
			Link:  "/admin/subscriptions",
		}, nil
	case model.NotificationKind{Type: model.TypeSubscription, Event: model.EventCreated},
		model.NotificationKind{Type: model.TypeSubscription, Event: model.EventActivated}:
		return NotificationTemplate{
			Title: "New subscription",
			Body:  fmt.Sprintf("%s subscribed to %s (order %s).", d.Username, d.Plan, d.OrderID),
			Link:  "/admin/subscriptions",
		}, nil
	case model.NotificationKind{Type: model.TypeSubscription, Event: model.EventCanceled}:
		return NotificationTemplate{
			Title: "Subscription canceled",
			Body:  fmt.Sprintf("%s canceled their subscription.", d.Username),
			Link:  "/admin/subscriptions",
		}, nil
	case model.NotificationKind{Type: model.TypeSubscription, Event: model.EventProvisionFailed}:
		// Staff copy carries the internal reason and diagnostic for triage.
		return NotificationTemplate{
			Title: fmt.Sprintf("Provisioning failed for order %s", d.OrderID),
			Body:  d.Reason,
			Link:  "/admin/orders?order=" + d.OrderID,
		}, nil
	case model.NotificationKind{Type: model.TypePayment, Event: model.EventSucceeded}:
		return NotificationTemplate{
			Title: "Payment received",
			Body:  fmt.Sprintf("Payment captured for order %s (%s).", d.OrderID, d.Username),
			Link:  "/admin/billing",
		}, nil
	case model.NotificationKind{Type: model.TypePayment, Event: model.EventFailed}:
		return NotificationTemplate{
			Title: "Payment failed",
			Body:  fmt.Sprintf("Payment failed for order %s (%s).", d.OrderID, d.Username),
			Link:  "/admin/billing",
		}, nil
	case model.NotificationKind{Type: model.TypeLiveChat, Event: model.EventMessage}:
		return NotificationTemplate{
			Title: fmt.Sprintf("New message from %s", d.Username),
			Body:  d.Preview,
			Link:  "/admin/support?conversation=" + d.ConversationID,
		}, nil
	}
	return NotificationTemplate{}, fmt.Errorf("%w: %s (admin)", ErrUnknownKind, k)
}
