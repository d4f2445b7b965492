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
)

type deliveryRepoStub struct {
	store.Repository

	delivery *domain.Delivery
	updated  *domain.Delivery
}

func (s *deliveryRepoStub) FindDeliveryByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	if s.delivery == nil || s.delivery.ID != id {
		return nil, store.ErrDeliveryNotFound
	}
	copied := *s.delivery
	return &copied, nil
}

func (s *deliveryRepoStub) UpdateDelivery(ctx context.Context, delivery *domain.Delivery) (*domain.Delivery, error) {
	s.updated = delivery
	return delivery, nil
}

func scheduledDelivery(userID uuid.UUID) *domain.Delivery {
	return &domain.Delivery{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: uuid.New(),
		PaymentID:      uuid.New(),
		TrackingNumber: "BF1717581600000A1B2C",
		Status:         domain.DeliveryScheduled,
		ScheduledDate:  atDeliveryHour(time.Now().AddDate(0, 0, 3)),
	}
}

func TestRescheduleDelivery(t *testing.T) {
	userID := uuid.New()
	repo := &deliveryRepoStub{delivery: scheduledDelivery(userID)}
	svc := newTestService(repo)

	newDate := time.Now().AddDate(0, 0, 5)
	got, err := svc.RescheduleDelivery(context.Background(), userID, repo.delivery.ID, domain.RescheduleDeliveryRequest{ScheduledDate: newDate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ScheduledDate.Day() != newDate.Day() || got.ScheduledDate.Hour() != 10 {
		t.Fatalf("expected the new date at 10:00, got %v", got.ScheduledDate)
	}
}

func TestRescheduleDelivery_RejectsPastDate(t *testing.T) {
	userID := uuid.New()
	repo := &deliveryRepoStub{delivery: scheduledDelivery(userID)}
	svc := newTestService(repo)

	_, err := svc.RescheduleDelivery(context.Background(), userID, repo.delivery.ID, domain.RescheduleDeliveryRequest{
		ScheduledDate: time.Now().AddDate(0, 0, -1),
	})
	if !errors.Is(err, ErrPastDeliveryDate) {
		t.Fatalf("expected ErrPastDeliveryDate, got %v", err)
	}
}

func TestRescheduleDelivery_OnlyWhileScheduled(t *testing.T) {
	userID := uuid.New()
	delivery := scheduledDelivery(userID)
	delivery.Status = domain.DeliveryOutForDelivery
	repo := &deliveryRepoStub{delivery: delivery}
	svc := newTestService(repo)

	_, err := svc.RescheduleDelivery(context.Background(), userID, delivery.ID, domain.RescheduleDeliveryRequest{
		ScheduledDate: time.Now().AddDate(0, 0, 2),
	})
	if !errors.Is(err, ErrInvalidDeliveryState) {
		t.Fatalf("expected ErrInvalidDeliveryState, got %v", err)
	}
}

func TestCancelDelivery_BeforeDispatchOnly(t *testing.T) {
	userID := uuid.New()

	for _, status := range []string{domain.DeliveryScheduled, domain.DeliveryPreparing} {
		delivery := scheduledDelivery(userID)
		delivery.Status = status
		repo := &deliveryRepoStub{delivery: delivery}
		svc := newTestService(repo)

		reason := "travelling next week"
		got, err := svc.CancelDelivery(context.Background(), userID, delivery.ID, domain.CancelDeliveryRequest{Reason: &reason})
		if err != nil {
			t.Fatalf("cancel from %s: unexpected error: %v", status, err)
		}
		if got.Status != domain.DeliveryCancelled {
			t.Fatalf("cancel from %s: expected CANCELLED, got %s", status, got.Status)
		}
		if got.CustomerNotes == nil || *got.CustomerNotes != reason {
			t.Fatalf("cancel from %s: expected reason to be recorded", status)
		}
	}

	delivery := scheduledDelivery(userID)
	delivery.Status = domain.DeliveryOutForDelivery
	repo := &deliveryRepoStub{delivery: delivery}
	svc := newTestService(repo)
	if _, err := svc.CancelDelivery(context.Background(), userID, delivery.ID, domain.CancelDeliveryRequest{}); !errors.Is(err, ErrInvalidDeliveryState) {
		t.Fatalf("expected ErrInvalidDeliveryState once out for delivery, got %v", err)
	}
}

func TestCancelDelivery_OwnershipEnforced(t *testing.T) {
	delivery := scheduledDelivery(uuid.New())
	repo := &deliveryRepoStub{delivery: delivery}
	svc := newTestService(repo)

	if _, err := svc.CancelDelivery(context.Background(), uuid.New(), delivery.ID, domain.CancelDeliveryRequest{}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestUpdateDeliveryStatus_ParsesDriverAssignment(t *testing.T) {
	delivery := scheduledDelivery(uuid.New())
	repo := &deliveryRepoStub{delivery: delivery}
	svc := newTestService(repo)

	notes := "Assigned to driver: Ada Obi (08012345678)"
	got, err := svc.UpdateDeliveryStatus(context.Background(), delivery.ID, domain.UpdateDeliveryStatusRequest{
		Status: "OUT_FOR_DELIVERY",
		Notes:  &notes,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DriverName == nil || *got.DriverName != "Ada Obi" {
		t.Fatalf("expected driver name Ada Obi, got %v", got.DriverName)
	}
	if got.DriverPhone == nil || *got.DriverPhone != "08012345678" {
		t.Fatalf("expected driver phone, got %v", got.DriverPhone)
	}
	if got.ActualDeliveryDate != nil {
		t.Fatal("only DELIVERED stamps the actual delivery date")
	}
}

func TestUpdateDeliveryStatus_DeliveredStampsActualDate(t *testing.T) {
	delivery := scheduledDelivery(uuid.New())
	repo := &deliveryRepoStub{delivery: delivery}
	svc := newTestService(repo)

	got, err := svc.UpdateDeliveryStatus(context.Background(), delivery.ID, domain.UpdateDeliveryStatusRequest{Status: "delivered"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.DeliveryDelivered {
		t.Fatalf("expected DELIVERED, got %s", got.Status)
	}
	if got.ActualDeliveryDate == nil {
		t.Fatal("expected the actual delivery date to be stamped")
	}
}

func TestUpdateDeliveryStatus_RejectsUnknownStatus(t *testing.T) {
	delivery := scheduledDelivery(uuid.New())
	repo := &deliveryRepoStub{delivery: delivery}
	svc := newTestService(repo)

	if _, err := svc.UpdateDeliveryStatus(context.Background(), delivery.ID, domain.UpdateDeliveryStatusRequest{Status: "TELEPORTED"}); !errors.Is(err, ErrInvalidDeliveryState) {
		t.Fatalf("expected ErrInvalidDeliveryState, got %v", err)
	}
}

func TestNewTrackingNumber_Format(t *testing.T) {
	tn := newTrackingNumber()
	if !strings.HasPrefix(tn, "BF") {
		t.Fatalf("tracking numbers start with BF, got %q", tn)
	}
	if len(tn) < len("BF")+13+6 {
		t.Fatalf("unexpected tracking number length: %q", tn)
	}
}
