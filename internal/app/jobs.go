/**
 * @description
 * Scheduled job implementations: daily renewal billing and the monthly
 * delivery counter reset.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HeartyTjan/bukafresh-store/internal/billing"
	"github.com/HeartyTjan/bukafresh-store/internal/domain"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	service *Service
	logger  *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(service *Service, logger *slog.Logger) *Jobs {
	return &Jobs{
		service: service,
		logger:  logger,
	}
}

// RunDailyBilling initiates a renewal payment for every ACTIVE subscription
// whose next billing date has arrived, then advances the billing anchor. The
// idempotency key is derived from the subscription and the calendar day, so a
// job re-run after a crash cannot double-bill anyone.
func (j *Jobs) RunDailyBilling() {
	j.logger.Info("starting daily billing job")
	ctx := context.Background()
	now := time.Now()

	subs, err := j.service.repo.FindSubscriptionsDueForBilling(ctx, now)
	if err != nil {
		j.logger.Error("failed to load subscriptions due for billing", "error", err)
		return
	}
	if len(subs) == 0 {
		j.logger.Info("no subscriptions due for billing")
		return
	}

	j.logger.Info("found subscriptions due for billing", "count", len(subs))

	for _, sub := range subs {
		key := fmt.Sprintf("renewal:%s:%s", sub.ID, now.Format("2006-01-02"))

		// Renewals charge the mandate OnePipe already holds, so no bank
		// account accompanies the request.
		payment, err := j.service.InitiatePayment(ctx, sub.UserID, key, domain.InitiatePaymentRequest{
			SubscriptionID: sub.ID,
		})
		if err != nil {
			if errors.Is(err, ErrSubscriptionNotBillable) {
				j.logger.Warn("skipping renewal for unbillable subscription", "subscription_id", sub.ID, "status", sub.Status)
				continue
			}
			j.logger.Error("failed to initiate renewal payment", "subscription_id", sub.ID, "error", err)
			continue
		}
		j.logger.Info("renewal payment initiated", "subscription_id", sub.ID, "payment_reference", payment.PaymentReference)

		next := billing.NextBillingDate(sub.BillingCycle, sub.NextBillingDate)
		if err := j.service.repo.UpdateNextBillingDate(ctx, sub.ID, next); err != nil {
			j.logger.Error("failed to advance next billing date", "subscription_id", sub.ID, "error", err)
			continue
		}
	}

	j.logger.Info("daily billing job finished")
}

// RunMonthlyCounterReset zeroes every subscription's deliveries-this-month
// counter. Scheduled for the first of the month.
func (j *Jobs) RunMonthlyCounterReset() {
	j.logger.Info("starting monthly delivery counter reset job")
	ctx := context.Background()

	reset, err := j.service.repo.ResetMonthlyDeliveryCounts(ctx)
	if err != nil {
		j.logger.Error("failed to reset monthly delivery counters", "error", err)
		return
	}

	j.logger.Info("monthly delivery counter reset job finished", "subscriptions_reset", reset)
}
