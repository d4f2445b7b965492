/**
 * @description
 * This file defines the subscription domain model for the billing service.
 * A subscription owns the billing and delivery cadence for one user and moves
 * through a small state machine: PENDING -> ACTIVE <-> PAUSED, with CANCELED
 * as the terminal state. Activation only ever happens through a confirmed
 * payment, never directly from a client request.
 *
 * @notes
 * - Amounts are stored as `int64` in kobo (the smallest currency unit) to
 *   avoid floating-point inaccuracies with financial data.
 * - Billing/delivery dates are calendar dates; time-of-day is applied only
 *   when a delivery is scheduled.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses.
const (
	SubscriptionPending  = "PENDING"
	SubscriptionActive   = "ACTIVE"
	SubscriptionPaused   = "PAUSED"
	SubscriptionCanceled = "CANCELED"
)

// Billing cycles.
const (
	CycleMonthly = "MONTHLY"
	CycleWeekly  = "WEEKLY"
)

// Tiers.
const (
	TierEssentials = "ESSENTIALS"
	TierStandard   = "STANDARD"
	TierPremium    = "PREMIUM"
)

// Subscription maps to the `subscriptions` table.
type Subscription struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                uuid.UUID  `json:"user_id"`
	Tier                  string     `json:"tier"`
	BillingCycle          string     `json:"billing_cycle"`
	Status                string     `json:"status"`
	Price                 int64      `json:"price"` // in kobo
	NextBillingDate       time.Time  `json:"next_billing_date"`
	NextDeliveryDate      *time.Time `json:"next_delivery_date,omitempty"`
	DeliveryDay           string     `json:"delivery_day"` // anchor weekday, e.g. "SATURDAY"
	DeliveriesThisMonth   int        `json:"deliveries_this_month"`
	MaxDeliveriesPerMonth int        `json:"max_deliveries_per_month"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// IsLive reports whether the subscription occupies the user's single
// live-subscription slot. CANCELED subscriptions free the slot.
func (s *Subscription) IsLive() bool {
	switch s.Status {
	case SubscriptionPending, SubscriptionActive, SubscriptionPaused:
		return true
	}
	return false
}

// CreateSubscriptionRequest is the DTO for incoming subscription creation requests.
type CreateSubscriptionRequest struct {
	Tier         string `json:"tier"`
	BillingCycle string `json:"billing_cycle"`
	DeliveryDay  string `json:"delivery_day"`
}
