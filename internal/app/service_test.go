package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HeartyTjan/bukafresh-store/internal/domain"
	"github.com/HeartyTjan/bukafresh-store/internal/store"
	"github.com/HeartyTjan/bukafresh-store/pkg/rabbitmq"
)

type paymentFlowRepoStub struct {
	store.Repository

	sub      *domain.Subscription
	existing *domain.Payment // payment already stored under the idempotency key
	winner   *domain.Payment // payment returned after losing the insert race

	createErr    error
	createCalled bool
	created      *domain.Payment

	resolveErr      error
	resolved        *domain.Payment
	resolveCalled   bool
	byReference     *domain.Payment
	byReferenceErr  error
	lookupByRefDone bool

	activateCalled  bool
	activateMax     int
	activateErr     error
	incrementCalled bool
	incrementErr    error
	deliveryCreated *domain.Delivery
	nextDeliverySet bool
	addresses       []domain.Address
	addressesErr    error
}

func (s *paymentFlowRepoStub) FindPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	if s.existing != nil {
		return s.existing, nil
	}
	if s.createCalled && s.winner != nil {
		return s.winner, nil
	}
	return nil, store.ErrPaymentNotFound
}

func (s *paymentFlowRepoStub) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	if s.sub == nil || s.sub.ID != id {
		return nil, store.ErrSubscriptionNotFound
	}
	copied := *s.sub
	return &copied, nil
}

func (s *paymentFlowRepoStub) CreatePayment(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	s.createCalled = true
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = payment
	return payment, nil
}

func (s *paymentFlowRepoStub) FindPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	s.lookupByRefDone = true
	if s.byReferenceErr != nil {
		return nil, s.byReferenceErr
	}
	return s.byReference, nil
}

func (s *paymentFlowRepoStub) ResolvePayment(ctx context.Context, reference string, succeeded bool, responseSummary string, failureReason *string) (*domain.Payment, error) {
	s.resolveCalled = true
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return s.resolved, nil
}

func (s *paymentFlowRepoStub) ActivateSubscription(ctx context.Context, id uuid.UUID, maxDeliveriesPerMonth int, nextDeliveryDate time.Time) (*domain.Subscription, error) {
	s.activateCalled = true
	s.activateMax = maxDeliveriesPerMonth
	if s.activateErr != nil {
		return nil, s.activateErr
	}
	activated := *s.sub
	activated.Status = domain.SubscriptionActive
	activated.MaxDeliveriesPerMonth = maxDeliveriesPerMonth
	activated.NextDeliveryDate = &nextDeliveryDate
	s.sub = &activated
	return &activated, nil
}

func (s *paymentFlowRepoStub) IncrementDeliveriesThisMonth(ctx context.Context, id uuid.UUID) error {
	s.incrementCalled = true
	return s.incrementErr
}

func (s *paymentFlowRepoStub) FindAddressesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Address, error) {
	if s.addressesErr != nil {
		return nil, s.addressesErr
	}
	if len(s.addresses) == 0 {
		return nil, store.ErrAddressNotFound
	}
	return s.addresses, nil
}

func (s *paymentFlowRepoStub) CreateDelivery(ctx context.Context, delivery *domain.Delivery) (*domain.Delivery, error) {
	s.deliveryCreated = delivery
	return delivery, nil
}

func (s *paymentFlowRepoStub) UpdateNextDeliveryDate(ctx context.Context, id uuid.UUID, next time.Time) error {
	s.nextDeliverySet = true
	return nil
}

func (s *paymentFlowRepoStub) FindUserContactByID(ctx context.Context, userID uuid.UUID) (*domain.UserContact, error) {
	return &domain.UserContact{ID: userID, FirstName: "Ada", LastName: "Obi", Phone: "08012345678"}, nil
}

func newTestService(repo store.Repository) *Service {
	return NewService(repo, nil, &rabbitmq.EventProducerFallback{})
}

func pendingSubscription(userID uuid.UUID) *domain.Subscription {
	return &domain.Subscription{
		ID:              uuid.New(),
		UserID:          userID,
		Tier:            domain.TierStandard,
		BillingCycle:    domain.CycleWeekly,
		Status:          domain.SubscriptionPending,
		Price:           14000000,
		NextBillingDate: time.Now().AddDate(0, 0, 7),
		DeliveryDay:     "SATURDAY",
	}
}

func TestInitiatePayment_RequiresIdempotencyKey(t *testing.T) {
	svc := newTestService(&paymentFlowRepoStub{})

	_, err := svc.InitiatePayment(context.Background(), uuid.New(), "   ", domain.InitiatePaymentRequest{})
	if !errors.Is(err, ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
}

func TestInitiatePayment_ReplaysExistingKey(t *testing.T) {
	userID := uuid.New()
	existing := &domain.Payment{ID: uuid.New(), UserID: userID, Status: domain.PaymentPaid}
	repo := &paymentFlowRepoStub{existing: existing}
	svc := newTestService(repo)

	got, err := svc.InitiatePayment(context.Background(), userID, "key-1", domain.InitiatePaymentRequest{SubscriptionID: uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != existing.ID {
		t.Fatalf("expected the original payment back, got %s", got.ID)
	}
	if repo.createCalled {
		t.Fatal("replay must not create a second payment")
	}
}

func TestInitiatePayment_InsertRaceReturnsWinner(t *testing.T) {
	userID := uuid.New()
	sub := pendingSubscription(userID)
	winner := &domain.Payment{ID: uuid.New(), UserID: userID, SubscriptionID: sub.ID, Status: domain.PaymentPending}
	repo := &paymentFlowRepoStub{
		sub:       sub,
		createErr: store.ErrDuplicateIdempotencyKey,
		winner:    winner,
	}
	svc := newTestService(repo)

	got, err := svc.InitiatePayment(context.Background(), userID, "key-race", domain.InitiatePaymentRequest{SubscriptionID: sub.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != winner.ID {
		t.Fatalf("expected the race winner's payment, got %s", got.ID)
	}
}

func TestInitiatePayment_RejectsForeignSubscription(t *testing.T) {
	sub := pendingSubscription(uuid.New())
	repo := &paymentFlowRepoStub{sub: sub}
	svc := newTestService(repo)

	_, err := svc.InitiatePayment(context.Background(), uuid.New(), "key-2", domain.InitiatePaymentRequest{SubscriptionID: sub.ID})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestInitiatePayment_RejectsCanceledSubscription(t *testing.T) {
	userID := uuid.New()
	sub := pendingSubscription(userID)
	sub.Status = domain.SubscriptionCanceled
	repo := &paymentFlowRepoStub{sub: sub}
	svc := newTestService(repo)

	_, err := svc.InitiatePayment(context.Background(), userID, "key-3", domain.InitiatePaymentRequest{SubscriptionID: sub.ID})
	if !errors.Is(err, ErrSubscriptionNotBillable) {
		t.Fatalf("expected ErrSubscriptionNotBillable, got %v", err)
	}
}

func TestInitiatePayment_GeneratesPaymentReference(t *testing.T) {
	userID := uuid.New()
	sub := pendingSubscription(userID)
	repo := &paymentFlowRepoStub{sub: sub}
	svc := newTestService(repo)

	got, err := svc.InitiatePayment(context.Background(), userID, "key-4", domain.InitiatePaymentRequest{SubscriptionID: sub.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(got.PaymentReference, "PAY_") || len(got.PaymentReference) != len("PAY_")+16 {
		t.Fatalf("unexpected payment reference format: %q", got.PaymentReference)
	}
	if got.Amount != sub.Price {
		t.Fatalf("expected amount %d from subscription price, got %d", sub.Price, got.Amount)
	}
	if got.Status != domain.PaymentPending {
		t.Fatalf("expected PENDING payment, got %s", got.Status)
	}
}

func TestHandleProviderCallback_SuccessActivatesAndSchedules(t *testing.T) {
	userID := uuid.New()
	sub := pendingSubscription(userID)
	payment := &domain.Payment{
		ID:               uuid.New(),
		UserID:           userID,
		SubscriptionID:   sub.ID,
		Status:           domain.PaymentPaid,
		PaymentReference: "PAY_AAAA000011112222",
	}
	repo := &paymentFlowRepoStub{
		sub:       sub,
		resolved:  payment,
		addresses: []domain.Address{{Street: "2 Femi Close", City: "Lagos", IsDefault: false}, {Street: "1 Bode Way", City: "Lagos", IsDefault: true}},
	}
	svc := newTestService(repo)

	got, err := svc.HandleProviderCallback(context.Background(), domain.OnePipeWebhookDetails{
		Status:         "Successful",
		TransactionRef: payment.PaymentReference,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.PaymentPaid {
		t.Fatalf("expected PAID, got %s", got.Status)
	}
	if !repo.activateCalled {
		t.Fatal("expected pending subscription to be activated")
	}
	if repo.activateMax != 4 {
		t.Fatalf("expected weekly cycle to allow 4 deliveries per month, got %d", repo.activateMax)
	}
	if !repo.incrementCalled {
		t.Fatal("expected the monthly delivery counter to be consumed")
	}
	if repo.deliveryCreated == nil {
		t.Fatal("expected a delivery to be scheduled")
	}
	if repo.deliveryCreated.Address.Street != "1 Bode Way" {
		t.Fatalf("expected the default address snapshot, got %q", repo.deliveryCreated.Address.Street)
	}
	if !strings.HasPrefix(repo.deliveryCreated.TrackingNumber, "BF") {
		t.Fatalf("unexpected tracking number format: %q", repo.deliveryCreated.TrackingNumber)
	}
	if repo.deliveryCreated.ScheduledDate.Hour() != 10 {
		t.Fatalf("expected delivery at 10:00, got hour %d", repo.deliveryCreated.ScheduledDate.Hour())
	}
	if !repo.nextDeliverySet {
		t.Fatal("expected the next delivery date to advance")
	}
}

func TestHandleProviderCallback_FailureSkipsFulfillment(t *testing.T) {
	userID := uuid.New()
	sub := pendingSubscription(userID)
	payment := &domain.Payment{
		ID:               uuid.New(),
		UserID:           userID,
		SubscriptionID:   sub.ID,
		Status:           domain.PaymentFailed,
		PaymentReference: "PAY_BBBB000011112222",
	}
	repo := &paymentFlowRepoStub{sub: sub, resolved: payment}
	svc := newTestService(repo)

	got, err := svc.HandleProviderCallback(context.Background(), domain.OnePipeWebhookDetails{
		Status:         "Failed",
		TransactionRef: payment.PaymentReference,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.PaymentFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	if repo.activateCalled || repo.incrementCalled || repo.deliveryCreated != nil {
		t.Fatal("a failed payment must not trigger fulfillment")
	}
}

func TestHandleProviderCallback_DuplicateDeliveryIsNoOp(t *testing.T) {
	resolved := &domain.Payment{
		ID:               uuid.New(),
		Status:           domain.PaymentPaid,
		PaymentReference: "PAY_CCCC000011112222",
	}
	repo := &paymentFlowRepoStub{
		resolveErr:  store.ErrPaymentAlreadyResolved,
		byReference: resolved,
	}
	svc := newTestService(repo)

	got, err := svc.HandleProviderCallback(context.Background(), domain.OnePipeWebhookDetails{
		Status:         "SUCCESS",
		TransactionRef: resolved.PaymentReference,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != resolved.ID {
		t.Fatalf("expected the already-resolved payment, got %s", got.ID)
	}
	if repo.activateCalled || repo.incrementCalled || repo.deliveryCreated != nil {
		t.Fatal("a duplicate webhook must not re-run side effects")
	}
}

func TestHandleProviderCallback_UnknownReferenceNeverMutates(t *testing.T) {
	repo := &paymentFlowRepoStub{
		resolveErr:     store.ErrPaymentAlreadyResolved,
		byReferenceErr: store.ErrPaymentNotFound,
	}
	svc := newTestService(repo)

	_, err := svc.HandleProviderCallback(context.Background(), domain.OnePipeWebhookDetails{
		Status:         "Successful",
		TransactionRef: "PAY_DOESNOTEXIST0000",
	})
	if !errors.Is(err, store.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
	if repo.activateCalled || repo.incrementCalled || repo.deliveryCreated != nil {
		t.Fatal("an unknown reference must not mutate anything")
	}
}

func TestHandleProviderCallback_CanceledSubscriptionGetsNoDelivery(t *testing.T) {
	userID := uuid.New()
	sub := pendingSubscription(userID)
	sub.Status = domain.SubscriptionCanceled
	payment := &domain.Payment{
		ID:               uuid.New(),
		UserID:           userID,
		SubscriptionID:   sub.ID,
		Status:           domain.PaymentPaid,
		PaymentReference: "PAY_DDDD000011112222",
	}
	repo := &paymentFlowRepoStub{sub: sub, resolved: payment}
	svc := newTestService(repo)

	got, err := svc.HandleProviderCallback(context.Background(), domain.OnePipeWebhookDetails{
		Status:         "Successful",
		TransactionRef: payment.PaymentReference,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.PaymentPaid {
		t.Fatalf("the payment itself still resolves, got %s", got.Status)
	}
	if repo.activateCalled {
		t.Fatal("a canceled subscription must not be activated")
	}
	if repo.incrementCalled || repo.deliveryCreated != nil {
		t.Fatal("a subscription canceled mid-payment must not receive a delivery")
	}
}

func TestHandleProviderCallback_PausedSubscriptionGetsNoDelivery(t *testing.T) {
	userID := uuid.New()
	sub := pendingSubscription(userID)
	sub.Status = domain.SubscriptionPaused
	payment := &domain.Payment{
		ID:               uuid.New(),
		UserID:           userID,
		SubscriptionID:   sub.ID,
		Status:           domain.PaymentPaid,
		PaymentReference: "PAY_FFFF000011112222",
	}
	repo := &paymentFlowRepoStub{sub: sub, resolved: payment}
	svc := newTestService(repo)

	if _, err := svc.HandleProviderCallback(context.Background(), domain.OnePipeWebhookDetails{
		Status:         "Successful",
		TransactionRef: payment.PaymentReference,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.incrementCalled || repo.deliveryCreated != nil {
		t.Fatal("a paused subscription must not receive a delivery")
	}
}

func TestHandleProviderCallback_CapReachedSkipsDelivery(t *testing.T) {
	userID := uuid.New()
	sub := pendingSubscription(userID)
	sub.Status = domain.SubscriptionActive
	sub.MaxDeliveriesPerMonth = 4
	payment := &domain.Payment{
		ID:               uuid.New(),
		UserID:           userID,
		SubscriptionID:   sub.ID,
		Status:           domain.PaymentPaid,
		PaymentReference: "PAY_EEEE000011112222",
	}
	repo := &paymentFlowRepoStub{
		sub:          sub,
		resolved:     payment,
		incrementErr: store.ErrDeliveryCapReached,
	}
	svc := newTestService(repo)

	if _, err := svc.HandleProviderCallback(context.Background(), domain.OnePipeWebhookDetails{
		Status:         "Successful",
		TransactionRef: payment.PaymentReference,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.deliveryCreated != nil {
		t.Fatal("no delivery may be created past the monthly cap")
	}
}

func TestIsSuccessStatus(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"Successful", true},
		{"SUCCESS", true},
		{"success", true},
		{" successful ", true},
		{"Failed", false},
		{"PENDING", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isSuccessStatus(tt.status); got != tt.want {
			t.Fatalf("isSuccessStatus(%q) = %t, want %t", tt.status, got, tt.want)
		}
	}
}

func TestMaskAccountNumber(t *testing.T) {
	if got := maskAccountNumber("0123456789"); got != "******6789" {
		t.Fatalf("unexpected mask: %q", got)
	}
	if got := maskAccountNumber("123"); got != "123" {
		t.Fatalf("short numbers pass through, got %q", got)
	}
}
