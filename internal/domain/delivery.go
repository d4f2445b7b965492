/**
 * @description
 * This file defines the delivery domain model. A delivery exists only as a
 * consequence of a PAID payment on an ACTIVE subscription. The address and
 * line items are snapshots taken at creation time, so later edits to the
 * user's address book never retroactively change a scheduled delivery.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Delivery statuses. Progression is monotonic except CANCELLED/FAILED,
// which are terminal from any pre-DELIVERED state.
const (
	DeliveryScheduled      = "SCHEDULED"
	DeliveryPreparing      = "PREPARING"
	DeliveryOutForDelivery = "OUT_FOR_DELIVERY"
	DeliveryDelivered      = "DELIVERED"
	DeliveryCancelled      = "CANCELLED"
	DeliveryFailed         = "FAILED"
)

// Delivery maps to the `deliveries` table.
type Delivery struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	SubscriptionID     uuid.UUID  `json:"subscription_id"`
	PaymentID          uuid.UUID  `json:"payment_id"`
	TrackingNumber     string     `json:"tracking_number"`
	Status             string     `json:"status"`
	ScheduledDate      time.Time  `json:"scheduled_date"`
	ActualDeliveryDate *time.Time `json:"actual_delivery_date,omitempty"`
	Address            Address    `json:"delivery_address"`
	Items              []LineItem `json:"items"`
	DriverName         *string    `json:"driver_name,omitempty"`
	DriverPhone        *string    `json:"driver_phone,omitempty"`
	DeliveryNotes      *string    `json:"delivery_notes,omitempty"`
	CustomerNotes      *string    `json:"customer_notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Address is the delivery address snapshot embedded in a delivery record.
type Address struct {
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	IsDefault    bool   `json:"is_default"`
}

// LineItem is one catalog item included in a delivery.
type LineItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Unit      string `json:"unit"`
	Price     int64  `json:"price"` // in kobo
}

// RescheduleDeliveryRequest is the DTO for delivery reschedule requests.
type RescheduleDeliveryRequest struct {
	ScheduledDate time.Time `json:"scheduled_date"`
}

// UpdateDeliveryStatusRequest is the DTO for operations-side status updates.
type UpdateDeliveryStatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// CancelDeliveryRequest is the DTO for customer-side cancellations.
type CancelDeliveryRequest struct {
	Reason *string `json:"reason,omitempty"`
}
