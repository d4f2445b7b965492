/**
 * @description
 * This file defines the Go structs that model the incoming webhook payloads
 * from OnePipe, plus the internal notification events this service publishes
 * to RabbitMQ for SMS/email fan-out by the notification consumer.
 *
 * @notes
 * - OnePipe nests everything of interest under `details`; `transaction_ref`
 *   carries our payment reference back to us.
 * - Amounts arrive as strings from OnePipe and are kept as strings here;
 *   the payment record, not the webhook, is the source of truth for money.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// OnePipeWebhookPayload is the top-level webhook body from OnePipe.
type OnePipeWebhookPayload struct {
	Details OnePipeWebhookDetails `json:"details"`
}

// OnePipeWebhookDetails carries the transaction outcome.
type OnePipeWebhookDetails struct {
	Status            string              `json:"status"`
	Provider          string              `json:"provider,omitempty"`
	TransactionRef    string              `json:"transaction_ref"`
	CustomerRef       string              `json:"customer_ref,omitempty"`
	CustomerFirstname string              `json:"customer_firstname,omitempty"`
	CustomerSurname   string              `json:"customer_surname,omitempty"`
	TransactionDesc   string              `json:"transaction_desc,omitempty"`
	TransactionType   string              `json:"transaction_type,omitempty"`
	Amount            string              `json:"amount,omitempty"`
	Meta              *OnePipeWebhookMeta `json:"meta,omitempty"`
}

// OnePipeWebhookMeta holds optional provider metadata.
type OnePipeWebhookMeta struct {
	MandateID      string `json:"mandate_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	EventType      string `json:"event_type,omitempty"`
	AccountNo      string `json:"account_no,omitempty"`
	BillerCode     string `json:"biller_code,omitempty"`
	Fee            string `json:"fee,omitempty"`
	ExpiryDate     string `json:"expiry_date,omitempty"`
}

// DeliveryScheduledEvent is published when a delivery has been created, so
// the notification consumer can send the tracking SMS and email.
type DeliveryScheduledEvent struct {
	UserID         uuid.UUID `json:"user_id"`
	DeliveryID     uuid.UUID `json:"delivery_id"`
	TrackingNumber string    `json:"tracking_number"`
	ScheduledDate  time.Time `json:"scheduled_date"`
	SMSText        string    `json:"sms_text"`
	Timestamp      time.Time `json:"timestamp"`
}

// PaymentResolvedEvent is published after a payment reaches a terminal state.
type PaymentResolvedEvent struct {
	UserID           uuid.UUID `json:"user_id"`
	PaymentID        uuid.UUID `json:"payment_id"`
	PaymentReference string    `json:"payment_reference"`
	Status           string    `json:"status"`
	Amount           int64     `json:"amount"`
	Timestamp        time.Time `json:"timestamp"`
}
