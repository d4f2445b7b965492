/**
 * @description
 * This file contains the core business logic for payment orchestration. The
 * `Service` struct coordinates the repository, the OnePipe payment client, and
 * the message broker.
 *
 * Key features:
 * - Initiates invoice payments with idempotency-key deduplication: a replayed
 *   request returns the original payment record without touching the provider.
 * - Resolves payments from provider webhooks. The repository performs the
 *   conditional PENDING->PAID/FAILED update, so a duplicate webhook delivery
 *   observes the already-resolved record and triggers no side effects.
 * - On the winning PAID resolution, activates the subscription (if still
 *   pending) and schedules the next delivery.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/onepipeclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HeartyTjan/bukafresh-store/internal/billing"
	"github.com/HeartyTjan/bukafresh-store/internal/catalog"
	"github.com/HeartyTjan/bukafresh-store/internal/domain"
	"github.com/HeartyTjan/bukafresh-store/internal/store"
	"github.com/HeartyTjan/bukafresh-store/pkg/onepipeclient"
	"github.com/HeartyTjan/bukafresh-store/pkg/rabbitmq"
)

// providerCallTimeout bounds the fire-and-forget invoice call to OnePipe so a
// hung provider never leaks goroutines indefinitely.
const providerCallTimeout = 30 * time.Second

// Service provides the business logic for payments, subscriptions, and deliveries.
type Service struct {
	repo          store.Repository
	onePipeClient *onepipeclient.Client
	eventProducer rabbitmq.Publisher
}

// NewService creates a new service instance.
func NewService(repo store.Repository, onePipe *onepipeclient.Client, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:          repo,
		onePipeClient: onePipe,
		eventProducer: producer,
	}
}

// newPaymentReference generates a reference like PAY_1A2B3C4D5E6F7890. The
// reference is what the provider echoes back in webhooks, so it must be unique
// per payment attempt.
func newPaymentReference() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure is unrecoverable in practice; fall back to a
		// timestamp so the reference is still unique enough.
		return fmt.Sprintf("PAY_%X", time.Now().UnixNano())
	}
	return "PAY_" + strings.ToUpper(hex.EncodeToString(buf))
}

// InitiatePayment creates a PENDING payment for the subscription and asks
// OnePipe to issue the invoice. The idempotency key makes retries safe: a key
// already on file returns the original record, whatever its current status.
func (s *Service) InitiatePayment(ctx context.Context, userID uuid.UUID, idempotencyKey string, req domain.InitiatePaymentRequest) (*domain.Payment, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, ErrIdempotencyKeyRequired
	}

	if existing, err := s.repo.FindPaymentByIdempotencyKey(ctx, idempotencyKey); err == nil {
		log.Printf("InitiatePayment: replaying idempotency key %s, returning payment %s", idempotencyKey, existing.ID)
		return existing, nil
	} else if !errors.Is(err, store.ErrPaymentNotFound) {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	sub, err := s.repo.FindSubscriptionByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrNotOwner
	}
	if sub.Status != domain.SubscriptionPending && sub.Status != domain.SubscriptionActive {
		return nil, ErrSubscriptionNotBillable
	}

	payment := &domain.Payment{
		ID:               uuid.New(),
		UserID:           userID,
		SubscriptionID:   sub.ID,
		Amount:           sub.Price,
		Currency:         "NGN",
		Status:           domain.PaymentPending,
		PaymentReference: newPaymentReference(),
		IdempotencyKey:   idempotencyKey,
	}

	created, err := s.repo.CreatePayment(ctx, payment)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
			// Lost an insert race with a concurrent retry. The winner's row is
			// the payment for this key; return it instead of erroring.
			return s.repo.FindPaymentByIdempotencyKey(ctx, idempotencyKey)
		}
		return nil, err
	}

	s.sendInvoiceAsync(created, sub, req.BankAccount)

	return created, nil
}

// sendInvoiceAsync dispatches the OnePipe invoice call in the background. The
// payment stays PENDING regardless of the call's outcome; only the webhook
// resolves it. A provider error here is logged and otherwise ignored because
// OnePipe retries invoice delivery on its side.
func (s *Service) sendInvoiceAsync(payment *domain.Payment, sub *domain.Subscription, account domain.BankAccount) {
	if s.onePipeClient == nil {
		log.Printf("WARN: sendInvoiceAsync: no provider client configured, payment %s stays pending", payment.PaymentReference)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
		defer cancel()

		contact, err := s.repo.FindUserContactByID(ctx, payment.UserID)
		if err != nil {
			log.Printf("WARN: sendInvoiceAsync: could not load contact for user %s: %v", payment.UserID, err)
			contact = &domain.UserContact{ID: payment.UserID}
		}

		desc := fmt.Sprintf("bukaFresh %s %s subscription", sub.Tier, strings.ToLower(sub.BillingCycle))
		resp, err := s.onePipeClient.SendInvoice(ctx, onepipeclient.InvoiceRequest{
			TransactionRef:  payment.PaymentReference,
			Amount:          payment.Amount,
			CustomerRef:     payment.UserID.String(),
			CustomerEmail:   contact.Email,
			CustomerPhone:   contact.Phone,
			CustomerName:    strings.TrimSpace(contact.FirstName + " " + contact.LastName),
			AccountNumber:   account.AccountNumber,
			BankCode:        account.BankCode,
			TransactionDesc: desc,
		})
		if err != nil {
			log.Printf("WARN: sendInvoiceAsync: invoice call failed for payment %s (account %s): %v", payment.PaymentReference, maskAccountNumber(account.AccountNumber), err)
			return
		}
		log.Printf("sendInvoiceAsync: invoice sent for payment %s, provider status %s", payment.PaymentReference, resp.Status)
	}()
}

// isSuccessStatus reports whether a webhook status counts as a successful
// payment. OnePipe is inconsistent about casing and wording across providers.
func isSuccessStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESSFUL", "SUCCESS":
		return true
	}
	return false
}

// HandleProviderCallback resolves a payment from a OnePipe webhook delivery.
// Resolution is exactly-once: the first delivery for a reference flips the
// payment out of PENDING and runs the side effects (subscription activation,
// delivery scheduling, notifications); every later delivery for the same
// reference finds the payment already resolved and does nothing.
func (s *Service) HandleProviderCallback(ctx context.Context, details domain.OnePipeWebhookDetails) (*domain.Payment, error) {
	reference := strings.TrimSpace(details.TransactionRef)
	if reference == "" {
		return nil, store.ErrPaymentNotFound
	}

	succeeded := isSuccessStatus(details.Status)
	summary := fmt.Sprintf("provider=%s status=%s", details.Provider, details.Status)
	var failureReason *string
	if !succeeded {
		reason := fmt.Sprintf("provider reported status %q", details.Status)
		failureReason = &reason
	}

	payment, err := s.repo.ResolvePayment(ctx, reference, succeeded, summary, failureReason)
	if err != nil {
		if errors.Is(err, store.ErrPaymentAlreadyResolved) {
			// Either a duplicate delivery or an unknown reference; a plain
			// read tells them apart. Neither mutates anything.
			existing, findErr := s.repo.FindPaymentByReference(ctx, reference)
			if findErr != nil {
				return nil, findErr
			}
			log.Printf("HandleProviderCallback: duplicate webhook for %s, payment already %s", reference, existing.Status)
			return existing, nil
		}
		return nil, err
	}

	log.Printf("HandleProviderCallback: payment %s resolved to %s", reference, payment.Status)
	s.publishPaymentResolved(ctx, payment)

	if !succeeded {
		return payment, nil
	}

	if err := s.onPaymentPaid(ctx, payment); err != nil {
		// The payment is durably PAID; fulfillment problems must not make the
		// provider retry the webhook.
		log.Printf("ERROR: HandleProviderCallback: post-payment fulfillment failed for %s: %v", reference, err)
	}

	return payment, nil
}

// onPaymentPaid runs the fulfillment side of a successful payment: activate a
// pending subscription, schedule the delivery, and notify the customer.
func (s *Service) onPaymentPaid(ctx context.Context, payment *domain.Payment) error {
	sub, err := s.repo.FindSubscriptionByID(ctx, payment.SubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to load subscription %s: %w", payment.SubscriptionID, err)
	}

	if sub.Status == domain.SubscriptionPending {
		weekday, err := billing.ParseWeekday(sub.DeliveryDay)
		if err != nil {
			weekday = time.Saturday
		}
		firstDelivery := billing.FirstDeliveryDate(sub.BillingCycle, weekday, time.Now())
		activated, err := s.repo.ActivateSubscription(ctx, sub.ID, catalog.MaxDeliveriesPerMonth(sub.BillingCycle), atDeliveryHour(firstDelivery))
		if err != nil {
			if !errors.Is(err, store.ErrSubscriptionNotPending) {
				return fmt.Errorf("failed to activate subscription %s: %w", sub.ID, err)
			}
			// A concurrent resolution already activated it; reload and continue.
			activated, err = s.repo.FindSubscriptionByID(ctx, sub.ID)
			if err != nil {
				return err
			}
		}
		sub = activated
	}

	// A delivery only follows a payment for an ACTIVE subscription. If the
	// customer paused or canceled while the payment was in flight, the money
	// is recorded but nothing ships.
	if sub.Status != domain.SubscriptionActive {
		log.Printf("onPaymentPaid: subscription %s is %s, skipping delivery for payment %s", sub.ID, sub.Status, payment.PaymentReference)
		return nil
	}

	delivery, err := s.scheduleDeliveryForPayment(ctx, sub, payment)
	if err != nil {
		return err
	}
	if delivery != nil {
		s.publishDeliveryScheduled(ctx, sub, delivery)
	}

	return nil
}

func (s *Service) publishPaymentResolved(ctx context.Context, payment *domain.Payment) {
	event := domain.PaymentResolvedEvent{
		UserID:           payment.UserID,
		PaymentID:        payment.ID,
		PaymentReference: payment.PaymentReference,
		Status:           payment.Status,
		Amount:           payment.Amount,
		Timestamp:        time.Now(),
	}
	if err := s.eventProducer.Publish(ctx, "notification_events", "payment.resolved", event); err != nil {
		log.Printf("WARN: failed to publish payment.resolved for %s: %v", payment.PaymentReference, err)
	}
}

// publishDeliveryScheduled hands the notification consumer everything it
// needs for the tracking SMS, including the rendered text.
func (s *Service) publishDeliveryScheduled(ctx context.Context, sub *domain.Subscription, delivery *domain.Delivery) {
	text := fmt.Sprintf(
		"bukaFresh: Your %s box is confirmed! Delivery scheduled for %s. Track it with %s.",
		titleCase(sub.Tier),
		delivery.ScheduledDate.Format("Mon, 02 Jan"),
		delivery.TrackingNumber,
	)
	event := domain.DeliveryScheduledEvent{
		UserID:         delivery.UserID,
		DeliveryID:     delivery.ID,
		TrackingNumber: delivery.TrackingNumber,
		ScheduledDate:  delivery.ScheduledDate,
		SMSText:        text,
		Timestamp:      time.Now(),
	}
	if err := s.eventProducer.Publish(ctx, "notification_events", "delivery.scheduled", event); err != nil {
		log.Printf("WARN: failed to publish delivery.scheduled for %s: %v", delivery.TrackingNumber, err)
	}
}

// titleCase renders an upper-cased enum value like "PREMIUM" as "Premium".
func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// GetPayment returns a payment owned by the user.
func (s *Service) GetPayment(ctx context.Context, userID, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrNotOwner
	}
	return payment, nil
}

// ListPayments returns the user's payment history, newest first.
func (s *Service) ListPayments(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	return s.repo.FindPaymentsByUserID(ctx, userID)
}

// maskAccountNumber keeps the last four digits of an account number so logs
// and messages never carry the full number.
func maskAccountNumber(accountNumber string) string {
	n := len(accountNumber)
	if n <= 4 {
		return accountNumber
	}
	return strings.Repeat("*", n-4) + accountNumber[n-4:]
}
