/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the billing service. By defining
 * an interface, we decouple the application's business logic from the
 * PostgreSQL implementation, making the state machines testable with stubs.
 *
 * @notes
 * - The exactly-once operations (ResolvePayment, ActivateSubscription,
 *   TransitionSubscriptionStatus, IncrementDeliveriesThisMonth) are atomic
 *   conditional updates: a single UPDATE with a status predicate and
 *   RETURNING clause. A caller losing the race observes a sentinel error and
 *   falls back to a plain read; it never retries the write in a loop.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/HeartyTjan/bukafresh-store/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Subscription methods
	CreateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)
	FindSubscriptionsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error)
	// FindLiveSubscriptionByUserID returns the user's PENDING/ACTIVE/PAUSED
	// subscription if one exists (at most one by invariant).
	FindLiveSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	// ActivateSubscription moves PENDING -> ACTIVE and stamps delivery
	// cadence fields. ErrSubscriptionNotPending when the predicate misses.
	ActivateSubscription(ctx context.Context, id uuid.UUID, maxDeliveriesPerMonth int, nextDeliveryDate time.Time) (*domain.Subscription, error)
	// TransitionSubscriptionStatus moves the subscription to `to` only when
	// its current status is one of `from`. ErrSubscriptionStateConflict when
	// the predicate misses.
	TransitionSubscriptionStatus(ctx context.Context, id uuid.UUID, from []string, to string) (*domain.Subscription, error)
	// DeleteSubscription removes a non-ACTIVE subscription.
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	UpdateNextBillingDate(ctx context.Context, id uuid.UUID, next time.Time) error
	UpdateNextDeliveryDate(ctx context.Context, id uuid.UUID, next time.Time) error
	// IncrementDeliveriesThisMonth bumps the counter only while it is below
	// the per-month cap. ErrDeliveryCapReached when the predicate misses.
	IncrementDeliveriesThisMonth(ctx context.Context, id uuid.UUID) error
	FindSubscriptionsDueForBilling(ctx context.Context, dueBy time.Time) ([]domain.Subscription, error)
	ResetMonthlyDeliveryCounts(ctx context.Context) (int64, error)

	// Payment methods
	// CreatePayment persists a new PENDING payment. ErrDuplicateIdempotencyKey
	// when the unique index on idempotency_key rejects the insert.
	CreatePayment(ctx context.Context, payment *domain.Payment) (*domain.Payment, error)
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	FindPaymentByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)
	FindPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error)
	FindPaymentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	FindPaymentsBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) ([]domain.Payment, error)
	// ResolvePayment terminally resolves the PENDING payment with the given
	// reference. ErrPaymentAlreadyResolved when the predicate misses, meaning
	// a concurrent or earlier callback already won.
	ResolvePayment(ctx context.Context, reference string, succeeded bool, responseSummary string, failureReason *string) (*domain.Payment, error)

	// Delivery methods
	CreateDelivery(ctx context.Context, delivery *domain.Delivery) (*domain.Delivery, error)
	FindDeliveryByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error)
	FindDeliveryByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Delivery, error)
	FindDeliveriesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Delivery, error)
	FindDeliveriesByUserIDAndStatuses(ctx context.Context, userID uuid.UUID, statuses []string) ([]domain.Delivery, error)
	UpdateDelivery(ctx context.Context, delivery *domain.Delivery) (*domain.Delivery, error)

	// Collaborator read models (owned by the CRUD surface, read here)
	FindAddressesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Address, error)
	FindUserContactByID(ctx context.Context, userID uuid.UUID) (*domain.UserContact, error)
}
