/**
 * @description
 * This file contains the HTTP handlers for the billing service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/HeartyTjan/bukafresh-store/internal/app"
	"github.com/HeartyTjan/bukafresh-store/internal/config"
	"github.com/HeartyTjan/bukafresh-store/internal/domain"
	"github.com/HeartyTjan/bukafresh-store/internal/store"
)

// Handlers holds the application service and supporting pieces the HTTP
// handlers use.
type Handlers struct {
	service *app.Service
	limiter *app.RedisRateLimiter
	config  config.Config
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, limiter *app.RedisRateLimiter, cfg config.Config) *Handlers {
	return &Handlers{service: service, limiter: limiter, config: cfg}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps business and repository errors onto HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrIdempotencyKeyRequired),
		errors.Is(err, app.ErrInvalidTier),
		errors.Is(err, app.ErrInvalidBillingCycle),
		errors.Is(err, app.ErrInvalidDeliveryDay),
		errors.Is(err, app.ErrPastDeliveryDate):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotOwner),
		errors.Is(err, store.ErrSubscriptionNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrDeliveryNotFound):
		// A resource that belongs to someone else looks the same as one that
		// does not exist.
		h.writeError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, app.ErrSubscriptionExists),
		errors.Is(err, app.ErrSubscriptionNotBillable),
		errors.Is(err, app.ErrInvalidDeliveryState),
		errors.Is(err, store.ErrSubscriptionNotPending),
		errors.Is(err, store.ErrSubscriptionStateConflict),
		errors.Is(err, store.ErrDeliveryCapReached):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

func (h *Handlers) requireUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get user ID from context")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handlers) parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// --- Subscriptions ---

// CreateSubscriptionHandler handles POST /subscriptions.
func (h *Handlers) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := h.service.CreateSubscription(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptionsHandler handles GET /subscriptions.
func (h *Handlers) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	subs, err := h.service.ListSubscriptions(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	h.writeJSON(w, http.StatusOK, subs)
}

// GetSubscriptionHandler handles GET /subscriptions/{subscriptionID}.
func (h *Handlers) GetSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	subID, ok := h.parseIDParam(w, r, "subscriptionID")
	if !ok {
		return
	}

	sub, err := h.service.GetSubscription(r.Context(), userID, subID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sub)
}

func (h *Handlers) transitionHandler(transition func(r *http.Request, userID, subID uuid.UUID) (*domain.Subscription, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := h.requireUserID(w, r)
		if !ok {
			return
		}
		subID, ok := h.parseIDParam(w, r, "subscriptionID")
		if !ok {
			return
		}

		sub, err := transition(r, userID, subID)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, sub)
	}
}

// PauseSubscriptionHandler handles POST /subscriptions/{subscriptionID}/pause.
func (h *Handlers) PauseSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(func(r *http.Request, userID, subID uuid.UUID) (*domain.Subscription, error) {
		return h.service.PauseSubscription(r.Context(), userID, subID)
	})(w, r)
}

// ResumeSubscriptionHandler handles POST /subscriptions/{subscriptionID}/resume.
func (h *Handlers) ResumeSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(func(r *http.Request, userID, subID uuid.UUID) (*domain.Subscription, error) {
		return h.service.ResumeSubscription(r.Context(), userID, subID)
	})(w, r)
}

// CancelSubscriptionHandler handles POST /subscriptions/{subscriptionID}/cancel.
func (h *Handlers) CancelSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(func(r *http.Request, userID, subID uuid.UUID) (*domain.Subscription, error) {
		return h.service.CancelSubscription(r.Context(), userID, subID)
	})(w, r)
}

// DeleteSubscriptionHandler handles DELETE /subscriptions/{subscriptionID}.
func (h *Handlers) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	subID, ok := h.parseIDParam(w, r, "subscriptionID")
	if !ok {
		return
	}

	if err := h.service.DeleteSubscription(r.Context(), userID, subID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Payments ---

// InitiatePaymentHandler handles POST /payments. The Idempotency-Key header
// is mandatory; replaying the same key returns the original payment.
func (h *Handlers) InitiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	if !h.allowRate(w, r, "payment_initiate", userID.String(), h.config.PaymentRateLimitPerMinute) {
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var req domain.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, err := h.service.InitiatePayment(r.Context(), userID, idempotencyKey, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, payment.ToResponse())
}

// ListPaymentsHandler handles GET /payments.
func (h *Handlers) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	payments, err := h.service.ListPayments(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	responses := make([]domain.PaymentResponse, 0, len(payments))
	for i := range payments {
		responses = append(responses, payments[i].ToResponse())
	}
	h.writeJSON(w, http.StatusOK, responses)
}

// GetPaymentHandler handles GET /payments/{paymentID}.
func (h *Handlers) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	paymentID, ok := h.parseIDParam(w, r, "paymentID")
	if !ok {
		return
	}

	payment, err := h.service.GetPayment(r.Context(), userID, paymentID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment.ToResponse())
}

// --- Deliveries ---

// ListDeliveriesHandler handles GET /deliveries with an optional
// comma-separated ?status= filter.
func (h *Handlers) ListDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	var statuses []string
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = strings.Split(raw, ",")
	}

	deliveries, err := h.service.ListDeliveries(r.Context(), userID, statuses)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if deliveries == nil {
		deliveries = []domain.Delivery{}
	}
	h.writeJSON(w, http.StatusOK, deliveries)
}

// GetDeliveryHandler handles GET /deliveries/{deliveryID}.
func (h *Handlers) GetDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	deliveryID, ok := h.parseIDParam(w, r, "deliveryID")
	if !ok {
		return
	}

	delivery, err := h.service.GetDelivery(r.Context(), userID, deliveryID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, delivery)
}

// TrackDeliveryHandler handles GET /track/{trackingNumber}. The endpoint is
// public, so it is rate limited by client IP.
func (h *Handlers) TrackDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	if !h.allowRate(w, r, "tracking", clientIP(r), h.config.TrackingRateLimitPerMinute) {
		return
	}

	trackingNumber := chi.URLParam(r, "trackingNumber")
	delivery, err := h.service.TrackDelivery(r.Context(), trackingNumber)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, delivery)
}

// RescheduleDeliveryHandler handles PUT /deliveries/{deliveryID}/reschedule.
func (h *Handlers) RescheduleDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	deliveryID, ok := h.parseIDParam(w, r, "deliveryID")
	if !ok {
		return
	}

	var req domain.RescheduleDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	delivery, err := h.service.RescheduleDelivery(r.Context(), userID, deliveryID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, delivery)
}

// CancelDeliveryHandler handles POST /deliveries/{deliveryID}/cancel.
func (h *Handlers) CancelDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	deliveryID, ok := h.parseIDParam(w, r, "deliveryID")
	if !ok {
		return
	}

	var req domain.CancelDeliveryRequest
	if r.Body != nil {
		// The cancellation reason is optional; an empty body is fine.
		json.NewDecoder(r.Body).Decode(&req)
	}

	delivery, err := h.service.CancelDelivery(r.Context(), userID, deliveryID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, delivery)
}

// UpdateDeliveryStatusHandler handles PUT /admin/deliveries/{deliveryID}/status.
func (h *Handlers) UpdateDeliveryStatusHandler(w http.ResponseWriter, r *http.Request) {
	deliveryID, ok := h.parseIDParam(w, r, "deliveryID")
	if !ok {
		return
	}

	var req domain.UpdateDeliveryStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	delivery, err := h.service.UpdateDeliveryStatus(r.Context(), deliveryID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, delivery)
}

// allowRate consumes one unit of the named rate limit and writes a 429 with a
// Retry-After header once the limit is exhausted. A limiter failure lets the
// request through rather than blocking traffic on Redis.
func (h *Handlers) allowRate(w http.ResponseWriter, r *http.Request, scope, subject string, limit int) bool {
	decision, err := h.limiter.Allow(r.Context(), scope, subject, limit, time.Minute)
	if err != nil {
		log.Printf("level=warn component=api msg=\"rate limiter unavailable\" scope=%s err=%v", scope, err)
		return true
	}
	if !decision.Allowed {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
