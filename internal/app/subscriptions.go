/**
 * @description
 * Subscription lifecycle business logic. A user holds at most one live
 * subscription (PENDING, ACTIVE, or PAUSED) at a time. Status transitions are
 * enforced by conditional updates in the repository, so two concurrent
 * requests can never both win the same transition.
 */

package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HeartyTjan/bukafresh-store/internal/billing"
	"github.com/HeartyTjan/bukafresh-store/internal/catalog"
	"github.com/HeartyTjan/bukafresh-store/internal/domain"
	"github.com/HeartyTjan/bukafresh-store/internal/store"
)

// CreateSubscription creates a PENDING subscription for the user. The
// subscription stays PENDING until its first payment resolves PAID.
func (s *Service) CreateSubscription(ctx context.Context, userID uuid.UUID, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	tier := strings.ToUpper(strings.TrimSpace(req.Tier))
	cycle := strings.ToUpper(strings.TrimSpace(req.BillingCycle))

	if !catalog.ValidTier(tier) {
		return nil, ErrInvalidTier
	}
	if !catalog.ValidCycle(cycle) {
		return nil, ErrInvalidBillingCycle
	}
	deliveryDay := strings.ToUpper(strings.TrimSpace(req.DeliveryDay))
	if deliveryDay == "" {
		deliveryDay = "SATURDAY"
	}
	if _, err := billing.ParseWeekday(deliveryDay); err != nil {
		return nil, ErrInvalidDeliveryDay
	}

	if _, err := s.repo.FindLiveSubscriptionByUserID(ctx, userID); err == nil {
		return nil, ErrSubscriptionExists
	} else if !errors.Is(err, store.ErrSubscriptionNotFound) {
		return nil, err
	}

	price, err := catalog.PriceForTier(tier, cycle)
	if err != nil {
		return nil, err
	}

	sub := &domain.Subscription{
		ID:              uuid.New(),
		UserID:          userID,
		Tier:            tier,
		BillingCycle:    cycle,
		Status:          domain.SubscriptionPending,
		Price:           price,
		NextBillingDate: billing.NextBillingDate(cycle, time.Now()),
		DeliveryDay:     deliveryDay,
	}

	return s.repo.CreateSubscription(ctx, sub)
}

// GetSubscription returns a subscription owned by the user.
func (s *Service) GetSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.repo.FindSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrNotOwner
	}
	return sub, nil
}

// ListSubscriptions returns all of the user's subscriptions, newest first.
func (s *Service) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	return s.repo.FindSubscriptionsByUserID(ctx, userID)
}

// PauseSubscription moves an ACTIVE subscription to PAUSED. Paused
// subscriptions are skipped by the renewal job but keep their billing anchor.
func (s *Service) PauseSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	if _, err := s.GetSubscription(ctx, userID, subscriptionID); err != nil {
		return nil, err
	}
	return s.repo.TransitionSubscriptionStatus(ctx, subscriptionID, []string{domain.SubscriptionActive}, domain.SubscriptionPaused)
}

// ResumeSubscription moves a PAUSED subscription back to ACTIVE.
func (s *Service) ResumeSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	if _, err := s.GetSubscription(ctx, userID, subscriptionID); err != nil {
		return nil, err
	}
	return s.repo.TransitionSubscriptionStatus(ctx, subscriptionID, []string{domain.SubscriptionPaused}, domain.SubscriptionActive)
}

// CancelSubscription terminally cancels an ACTIVE or PAUSED subscription.
// CANCELED is a dead end; re-subscribing means creating a new subscription.
// A PENDING subscription has nothing to cancel, it is deleted instead.
func (s *Service) CancelSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	if _, err := s.GetSubscription(ctx, userID, subscriptionID); err != nil {
		return nil, err
	}
	from := []string{domain.SubscriptionActive, domain.SubscriptionPaused}
	return s.repo.TransitionSubscriptionStatus(ctx, subscriptionID, from, domain.SubscriptionCanceled)
}

// DeleteSubscription removes a subscription record entirely. ACTIVE
// subscriptions must be canceled first.
func (s *Service) DeleteSubscription(ctx context.Context, userID, subscriptionID uuid.UUID) error {
	if _, err := s.GetSubscription(ctx, userID, subscriptionID); err != nil {
		return err
	}
	return s.repo.DeleteSubscription(ctx, subscriptionID)
}
