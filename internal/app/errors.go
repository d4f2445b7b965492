package app

import "errors"

// Business rule errors surfaced by the service layer. Handlers map these to
// HTTP status codes; everything else is treated as an internal error.
var (
	ErrIdempotencyKeyRequired  = errors.New("idempotency key is required")
	ErrSubscriptionExists      = errors.New("user already has a live subscription")
	ErrNotOwner                = errors.New("resource does not belong to this user")
	ErrSubscriptionNotBillable = errors.New("subscription cannot accept payments in its current state")
	ErrInvalidDeliveryState    = errors.New("delivery is not in a state that allows this operation")
	ErrPastDeliveryDate        = errors.New("delivery date must be in the future")
	ErrInvalidTier             = errors.New("unknown subscription tier")
	ErrInvalidBillingCycle     = errors.New("unknown billing cycle")
	ErrInvalidDeliveryDay      = errors.New("unknown delivery day")
	ErrRateLimited             = errors.New("rate limit exceeded")
)
