package service

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type provisionFixture struct {
	svc      *ProvisioningService
	subs     *fakeSubStore
	prov     *fakeProvisioner
	notifs   *fakeNotifStore
	mailer   *fakeMailer
}

func newProvisionFixture(provErr error) *provisionFixture {
	users := testUsers()
	notifs := &fakeNotifStore{}
	mailer := &fakeMailer{}
	notifier := NewNotificationService(notifs, NewStoreAdminResolver(users), &fakePush{}, mailer)
	escalate := NewEscalationService(notifier, nil)
	subs := newFakeSubStore()
	prov := &fakeProvisioner{err: provErr}
	return &provisionFixture{
		svc:    NewProvisioningService(subs, users, prov, notifier, escalate),
		subs:   subs,
		prov:   prov,
		notifs: notifs,
		mailer: mailer,
	}
}

func TestPaidOrderProvisionsAndFansOut(t *testing.T) {
	f := newProvisionFixture(nil)

	sub, err := f.svc.HandlePaidOrder(context.Background(), "u1", "ORD-1", "pro")
	if err != nil {
		t.Fatalf("HandlePaidOrder: %v", err)
	}
	if sub == nil || sub.OrderID != "ORD-1" {
		t.Fatalf("sub = %+v, want order ORD-1", sub)
	}
	if f.prov.calls != 1 {
		t.Fatalf("provisioner calls = %d, want 1", f.prov.calls)
	}
	if len(f.notifs.forUser("u1")) != 1 || len(f.notifs.forUser("a1")) != 1 {
		t.Fatalf("success fan-out missing: user=%d admin=%d",
			len(f.notifs.forUser("u1")), len(f.notifs.forUser("a1")))
	}
}

// Scenario: payment captured, downstream provisioning throws. No
// subscription row may exist, and both sides must hear about it.
func TestProvisionFailureEscalatesWithoutSubscriptionRow(t *testing.T) {
	f := newProvisionFixture(errors.New("upstream exploded: raw diagnostic"))

	sub, err := f.svc.HandlePaidOrder(context.Background(), "u1", "ORD-1", "pro")
	if !errors.Is(err, ErrProvisionFailed) {
		t.Fatalf("err = %v, want ErrProvisionFailed", err)
	}
	if sub != nil {
		t.Fatalf("sub = %+v, want nil", sub)
	}

	if existing, _ := f.subs.GetByOrderID(context.Background(), "ORD-1"); existing != nil {
		t.Fatalf("subscription row created despite provisioning failure")
	}

	userNotifs := f.notifs.forUser("u1")
	if len(userNotifs) != 1 {
		t.Fatalf("user notifications = %d, want 1", len(userNotifs))
	}
	if strings.Contains(userNotifs[0].Body, "raw diagnostic") {
		t.Fatalf("user notification leaks the diagnostic: %q", userNotifs[0].Body)
	}
	if !strings.Contains(userNotifs[0].Body, "support") {
		t.Fatalf("user notification lacks contact-support copy: %q", userNotifs[0].Body)
	}

	adminNotifs := f.notifs.forUser("a1")
	if len(adminNotifs) != 1 {
		t.Fatalf("admin notifications = %d, want 1", len(adminNotifs))
	}
	if !strings.Contains(adminNotifs[0].Body, "raw diagnostic") {
		t.Fatalf("admin notification lost the diagnostic: %q", adminNotifs[0].Body)
	}
}

// Scenario: the payment collaborator replays the same order id. The
// second call returns the first call's row without re-provisioning.
func TestPaidOrderIsIdempotentByOrderID(t *testing.T) {
	f := newProvisionFixture(nil)

	first, err := f.svc.HandlePaidOrder(context.Background(), "u1", "ORD-1", "pro")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := f.svc.HandlePaidOrder(context.Background(), "u1", "ORD-1", "pro")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("second call returned a different row: %s vs %s", first.ID, second.ID)
	}
	if f.prov.calls != 1 {
		t.Fatalf("provisioner calls = %d, want 1 (no re-provisioning)", f.prov.calls)
	}
	if f.subs.createCalls != 1 {
		t.Fatalf("create calls = %d, want 1 (no duplicate row)", f.subs.createCalls)
	}
}

func TestEscalationNeverPanicsOut(t *testing.T) {
	users := testUsers()
	// Every insert fails; escalation must swallow it all.
	notifs := &fakeNotifStore{failFor: map[string]error{
		"u1": errors.New("db down"),
		"a1": errors.New("db down"),
	}}
	notifier := NewNotificationService(notifs, NewStoreAdminResolver(users), &fakePush{}, &fakeMailer{})
	escalate := NewEscalationService(notifier, nil)

	user, _ := users.GetByID(context.Background(), "u1")
	// Must not panic and must not return anything to unwind the caller.
	escalate.NotifyBoth(context.Background(), user, "ORD-1", "internal reason", "user facing", "diag")
}
