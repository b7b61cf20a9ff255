package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"helpdesk-backend/internal/model"
)

// Provisioner creates the paid service downstream of a captured
// payment. External collaborator; may fail after money moved.
type Provisioner interface {
	Provision(ctx context.Context, userID, orderID, plan string) error
}

// SubscriptionStore is the persistence surface for provisioned orders.
type SubscriptionStore interface {
	GetByOrderID(ctx context.Context, orderID string) (*model.Subscription, error)
	Create(ctx context.Context, userID, orderID, plan string) (*model.Subscription, error)
}

var ErrUserNotFound = errors.New("user not found")

// HTTPProvisioner calls the downstream provisioning endpoint.
type HTTPProvisioner struct {
	url    string
	client *http.Client
}

func NewHTTPProvisioner(url string) *HTTPProvisioner {
	return &HTTPProvisioner{url: url, client: &http.Client{Timeout: 15 * time.Second}}
}

func (p *HTTPProvisioner) Provision(ctx context.Context, userID, orderID, plan string) error {
	payload, err := json.Marshal(map[string]string{
		"user_id":  userID,
		"order_id": orderID,
		"plan":     plan,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provisioner returned HTTP %d: %s", resp.StatusCode, body)
	}
	return nil
}

// LocalProvisioner is used when no downstream endpoint is configured;
// the subscription row itself is the whole provisioned state.
type LocalProvisioner struct{}

func (LocalProvisioner) Provision(ctx context.Context, userID, orderID, plan string) error {
	_ = ctx
	log.Printf("[Provision] local mode: order %s (%s) for %s", orderID, plan, userID)
	return nil
}

// ErrProvisionFailed tells the caller provisioning broke after payment
// capture. By the time it is returned the escalation path has already
// notified both sides.
var ErrProvisionFailed = errors.New("provisioning failed after payment capture")

// ProvisioningService turns a captured payment into a subscription
// row, idempotently by order id, escalating when the downstream
// provisioning call fails.
type ProvisioningService struct {
	subs        SubscriptionStore
	users       UserStore
	provisioner Provisioner
	notifier    *NotificationService
	escalate    *EscalationService
}

func NewProvisioningService(subs SubscriptionStore, users UserStore, provisioner Provisioner, notifier *NotificationService, escalate *EscalationService) *ProvisioningService {
	return &ProvisioningService{
		subs:        subs,
		users:       users,
		provisioner: provisioner,
		notifier:    notifier,
		escalate:    escalate,
	}
}

// HandlePaidOrder is called by the payment collaborator once payment
// for an order has been captured. Calling it again with the same order
// id returns the existing subscription without re-provisioning.
func (s *ProvisioningService) HandlePaidOrder(ctx context.Context, userID, orderID, plan string) (*model.Subscription, error) {
	existing, err := s.subs.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lookup order %s: %w", orderID, err)
	}
	if existing != nil {
		log.Printf("[Provision] order %s already provisioned, returning existing", orderID)
		return existing, nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	if err := s.provisioner.Provision(ctx, userID, orderID, plan); err != nil {
		// Payment already captured: no subscription row is written,
		// and both sides hear about it. Best-effort by contract.
		log.Printf("[Provision] order %s failed downstream: %v", orderID, err)
		s.escalate.NotifyBoth(ctx, user, orderID,
			fmt.Sprintf("Provisioning failed for order %s (user %s, plan %s)", orderID, user.Username, plan),
			"",
			err.Error(),
		)
		return nil, fmt.Errorf("%w: order %s", ErrProvisionFailed, orderID)
	}

	sub, err := s.subs.Create(ctx, userID, orderID, plan)
	if err != nil {
		return nil, fmt.Errorf("record subscription for order %s: %w", orderID, err)
	}

	// Routine success fan-out; failures here are logged, never fatal.
	data := TemplateData{Username: user.Username, OrderID: orderID, Plan: plan}
	kind := model.NotificationKind{Type: model.TypeSubscription, Event: model.EventCreated}
	if err := s.notifier.NotifyBothRoles(ctx, user, kind, data); err != nil {
		log.Printf("[Provision] fan-out for order %s failed: %v", orderID, err)
	}
	return sub, nil
}
