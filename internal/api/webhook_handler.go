/**
 * @description
 * This file contains the HTTP handler for processing incoming webhooks from
 * OnePipe. It is the only code path that resolves a payment out of PENDING.
 *
 * Key features:
 * - Security: Validates the HMAC-SHA256 signature of incoming webhooks when a
 *   webhook secret is configured.
 * - Idempotent by construction: duplicate deliveries for the same transaction
 *   reference resolve to a no-op and still return 200, so OnePipe stops
 *   retrying.
 * - Always returns 200 for well-formed payloads; malformed JSON or a payload
 *   missing transaction_ref/status earns a 400 before any state changes.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: For webhook signature validation.
 * - encoding/json, net/http: For payload handling.
 */

package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/HeartyTjan/bukafresh-store/internal/app"
	"github.com/HeartyTjan/bukafresh-store/internal/domain"
	"github.com/HeartyTjan/bukafresh-store/internal/store"
)

// WebhookHandler processes incoming webhooks from OnePipe.
type WebhookHandler struct {
	service *app.Service
	secret  string
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(service *app.Service, secret string) *WebhookHandler {
	return &WebhookHandler{service: service, secret: secret}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = fmt.Sprintf("req_%d", time.Now().UnixNano())
	}

	log.Printf("[%s] OnePipe webhook received from %s", requestID, r.RemoteAddr)

	// Read the body once for signature validation and buffer it for decoding.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("[%s] Error reading webhook body: %v", requestID, err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if !h.isValidSignature(r.Header.Get("X-OnePipe-Signature"), body) {
		log.Printf("[%s] Error: Invalid webhook signature", requestID)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var payload domain.OnePipeWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("[%s] Error decoding webhook JSON: %v", requestID, err)
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	// Both fields are required before any payment can be touched. A callback
	// without a status must never resolve a PENDING payment as failed.
	if strings.TrimSpace(payload.Details.TransactionRef) == "" {
		log.Printf("[%s] Error: webhook payload missing transaction_ref", requestID)
		http.Error(w, "Missing transaction_ref", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Details.Status) == "" {
		log.Printf("[%s] Error: webhook payload missing status", requestID)
		http.Error(w, "Missing status", http.StatusBadRequest)
		return
	}

	payment, err := h.service.HandleProviderCallback(r.Context(), payload.Details)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			// An unknown reference is OnePipe's problem, not ours. Returning
			// 200 keeps it from retrying a webhook we can never process.
			log.Printf("[%s] Webhook for unknown transaction_ref %q ignored", requestID, payload.Details.TransactionRef)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ignored"}`))
			return
		}
		log.Printf("[%s] Error resolving webhook for %q: %v", requestID, payload.Details.TransactionRef, err)
		http.Error(w, "Failed to process webhook", http.StatusInternalServerError)
		return
	}

	log.Printf("[%s] Webhook processed, payment %s is %s", requestID, payment.PaymentReference, payment.Status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// isValidSignature checks the HMAC-SHA256 signature over the raw body. An
// empty configured secret disables verification (sandbox environments do not
// sign their webhooks).
func (h *WebhookHandler) isValidSignature(signature string, body []byte) bool {
	if h.secret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
