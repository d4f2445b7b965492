/**
 * @description
 * This file sets up the HTTP router for the billing service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes creates and returns the router for the billing service.
func Routes(h *Handlers, webhook *WebhookHandler, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// OnePipe calls this directly; it authenticates via HMAC signature, not JWT.
	r.Post("/webhooks/onepipe", webhook.ServeHTTP)

	// Public delivery tracking, rate limited by IP.
	r.Get("/track/{trackingNumber}", h.TrackDeliveryHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/subscriptions", h.CreateSubscriptionHandler)
		r.Get("/subscriptions", h.ListSubscriptionsHandler)
		r.Get("/subscriptions/{subscriptionID}", h.GetSubscriptionHandler)
		r.Post("/subscriptions/{subscriptionID}/pause", h.PauseSubscriptionHandler)
		r.Post("/subscriptions/{subscriptionID}/resume", h.ResumeSubscriptionHandler)
		r.Post("/subscriptions/{subscriptionID}/cancel", h.CancelSubscriptionHandler)
		r.Delete("/subscriptions/{subscriptionID}", h.DeleteSubscriptionHandler)

		r.Post("/payments", h.InitiatePaymentHandler)
		r.Get("/payments", h.ListPaymentsHandler)
		r.Get("/payments/{paymentID}", h.GetPaymentHandler)

		r.Get("/deliveries", h.ListDeliveriesHandler)
		r.Get("/deliveries/{deliveryID}", h.GetDeliveryHandler)
		r.Put("/deliveries/{deliveryID}/reschedule", h.RescheduleDeliveryHandler)
		r.Post("/deliveries/{deliveryID}/cancel", h.CancelDeliveryHandler)

		// Operations-side status updates.
		r.Put("/admin/deliveries/{deliveryID}/status", h.UpdateDeliveryStatusHandler)
	})

	return r
}
