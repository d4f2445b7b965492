/**
 * @description
 * Delivery scheduling and tracking logic. Deliveries are created only as a
 * side effect of a PAID payment; the address and line items are snapshotted
 * at creation so later profile edits never change a scheduled delivery.
 */

package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HeartyTjan/bukafresh-store/internal/billing"
	"github.com/HeartyTjan/bukafresh-store/internal/catalog"
	"github.com/HeartyTjan/bukafresh-store/internal/domain"
	"github.com/HeartyTjan/bukafresh-store/internal/store"
)

// deliveryHour is the local hour of day all deliveries are scheduled for.
const deliveryHour = 10

// driverNotePattern extracts the driver's name and phone from operations
// notes shaped like "Assigned to driver: Ada Obi (08012345678)".
var driverNotePattern = regexp.MustCompile(`Assigned to driver:\s*(.+?)\s*\((.+?)\)`)

// newTrackingNumber generates a tracking number like BF1717581600000A1B2C3.
func newTrackingNumber() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("BF%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("BF%d%s", time.Now().UnixMilli(), strings.ToUpper(hex.EncodeToString(buf)))
}

// atDeliveryHour normalizes a date to the delivery hour in its own location.
func atDeliveryHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), deliveryHour, 0, 0, 0, t.Location())
}

// scheduleDeliveryForPayment creates the delivery a successful payment pays
// for. Returns (nil, nil) when the subscriber has exhausted this month's
// delivery allowance; the counter resets on the first of the month.
func (s *Service) scheduleDeliveryForPayment(ctx context.Context, sub *domain.Subscription, payment *domain.Payment) (*domain.Delivery, error) {
	if err := s.repo.IncrementDeliveriesThisMonth(ctx, sub.ID); err != nil {
		if errors.Is(err, store.ErrDeliveryCapReached) {
			log.Printf("scheduleDeliveryForPayment: subscription %s hit its monthly delivery cap, skipping", sub.ID)
			return nil, nil
		}
		return nil, err
	}

	address, err := s.pickDeliveryAddress(ctx, sub.UserID)
	if err != nil {
		return nil, fmt.Errorf("cannot schedule delivery for subscription %s: %w", sub.ID, err)
	}

	items, err := catalog.ItemsForTier(sub.Tier)
	if err != nil {
		return nil, err
	}

	scheduled := sub.NextDeliveryDate
	if scheduled == nil {
		weekday, werr := billing.ParseWeekday(sub.DeliveryDay)
		if werr != nil {
			weekday = time.Saturday
		}
		first := billing.FirstDeliveryDate(sub.BillingCycle, weekday, time.Now())
		scheduled = &first
	}
	scheduledAt := atDeliveryHour(*scheduled)

	delivery := &domain.Delivery{
		ID:             uuid.New(),
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		PaymentID:      payment.ID,
		TrackingNumber: newTrackingNumber(),
		Status:         domain.DeliveryScheduled,
		ScheduledDate:  scheduledAt,
		Address:        *address,
		Items:          items,
	}

	created, err := s.repo.CreateDelivery(ctx, delivery)
	if err != nil {
		return nil, err
	}

	next := billing.NextBillingDate(sub.BillingCycle, scheduledAt)
	if err := s.repo.UpdateNextDeliveryDate(ctx, sub.ID, next); err != nil {
		log.Printf("WARN: failed to advance next delivery date for subscription %s: %v", sub.ID, err)
	}

	return created, nil
}

// pickDeliveryAddress returns the user's default address, or their first one
// when no default is marked.
func (s *Service) pickDeliveryAddress(ctx context.Context, userID uuid.UUID) (*domain.Address, error) {
	addresses, err := s.repo.FindAddressesByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range addresses {
		if addresses[i].IsDefault {
			return &addresses[i], nil
		}
	}
	return &addresses[0], nil
}

// GetDelivery returns a delivery owned by the user.
func (s *Service) GetDelivery(ctx context.Context, userID, deliveryID uuid.UUID) (*domain.Delivery, error) {
	delivery, err := s.repo.FindDeliveryByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery.UserID != userID {
		return nil, ErrNotOwner
	}
	return delivery, nil
}

// TrackDelivery looks up a delivery by its public tracking number. Tracking
// is unauthenticated, so callers rate limit it.
func (s *Service) TrackDelivery(ctx context.Context, trackingNumber string) (*domain.Delivery, error) {
	return s.repo.FindDeliveryByTrackingNumber(ctx, strings.TrimSpace(trackingNumber))
}

// ListDeliveries returns the user's deliveries, optionally filtered by status.
func (s *Service) ListDeliveries(ctx context.Context, userID uuid.UUID, statuses []string) ([]domain.Delivery, error) {
	if len(statuses) == 0 {
		return s.repo.FindDeliveriesByUserID(ctx, userID)
	}
	normalized := make([]string, 0, len(statuses))
	for _, st := range statuses {
		normalized = append(normalized, strings.ToUpper(strings.TrimSpace(st)))
	}
	return s.repo.FindDeliveriesByUserIDAndStatuses(ctx, userID, normalized)
}

// RescheduleDelivery moves a SCHEDULED delivery to a new future date. Once
// the delivery enters preparation it can no longer be moved.
func (s *Service) RescheduleDelivery(ctx context.Context, userID, deliveryID uuid.UUID, req domain.RescheduleDeliveryRequest) (*domain.Delivery, error) {
	delivery, err := s.GetDelivery(ctx, userID, deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery.Status != domain.DeliveryScheduled {
		return nil, ErrInvalidDeliveryState
	}
	if !req.ScheduledDate.After(time.Now()) {
		return nil, ErrPastDeliveryDate
	}

	delivery.ScheduledDate = atDeliveryHour(req.ScheduledDate)
	return s.repo.UpdateDelivery(ctx, delivery)
}

// CancelDelivery cancels a delivery that has not yet left for the customer.
func (s *Service) CancelDelivery(ctx context.Context, userID, deliveryID uuid.UUID, req domain.CancelDeliveryRequest) (*domain.Delivery, error) {
	delivery, err := s.GetDelivery(ctx, userID, deliveryID)
	if err != nil {
		return nil, err
	}
	switch delivery.Status {
	case domain.DeliveryScheduled, domain.DeliveryPreparing:
	default:
		return nil, ErrInvalidDeliveryState
	}

	delivery.Status = domain.DeliveryCancelled
	delivery.CustomerNotes = req.Reason
	return s.repo.UpdateDelivery(ctx, delivery)
}

// UpdateDeliveryStatus is the operations-side status update. Notes carrying a
// driver assignment populate the driver fields, and a DELIVERED transition
// stamps the actual delivery time.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, deliveryID uuid.UUID, req domain.UpdateDeliveryStatusRequest) (*domain.Delivery, error) {
	delivery, err := s.repo.FindDeliveryByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	status := strings.ToUpper(strings.TrimSpace(req.Status))
	switch status {
	case domain.DeliveryScheduled, domain.DeliveryPreparing, domain.DeliveryOutForDelivery,
		domain.DeliveryDelivered, domain.DeliveryCancelled, domain.DeliveryFailed:
	default:
		return nil, ErrInvalidDeliveryState
	}

	delivery.Status = status
	if req.Notes != nil {
		delivery.DeliveryNotes = req.Notes
		if m := driverNotePattern.FindStringSubmatch(*req.Notes); m != nil {
			name, phone := m[1], m[2]
			delivery.DriverName = &name
			delivery.DriverPhone = &phone
		}
	}
	if status == domain.DeliveryDelivered && delivery.ActualDeliveryDate == nil {
		now := time.Now()
		delivery.ActualDeliveryDate = &now
	}

	return s.repo.UpdateDelivery(ctx, delivery)
}
