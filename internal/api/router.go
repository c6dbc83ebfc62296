/**
 * @description
 * HTTP router for the fitness commerce API. Public routes carry the health
 * check and the payment webhook, member routes require a bearer token and
 * staff routes require the internal API key.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and request middleware.
 * - github.com/go-chi/cors: CORS for the browser storefront.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds the secrets and limits the router needs.
type RouterConfig struct {
	JWTSecret                  string
	InternalAPIKey             string
	AllowedOrigins             []string
	CheckoutRateLimitPerMinute int
	BookingRateLimitPerMinute  int
}

// NewRouter creates the chi router and registers every route.
func NewRouter(h *Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Post("/webhooks/payment", h.PaymentWebhookHandler)

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/orders/{orderID}/status", h.AdvanceOrderHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Route("/orders", func(r chi.Router) {
			r.With(RateLimitMiddleware(h.limiter, "checkout", cfg.CheckoutRateLimitPerMinute, h.logger)).
				Post("/checkout", h.CheckoutHandler)
			r.Get("/", h.ListOrdersHandler)
			r.Get("/{orderID}", h.GetOrderHandler)
			r.Post("/{orderID}/cancel", h.CancelOrderHandler)
			r.Post("/{orderID}/payment", h.RetryPaymentHandler)
		})

		r.Get("/slots/{slotID}", h.GetSlotHandler)
		r.With(RateLimitMiddleware(h.limiter, "booking", cfg.BookingRateLimitPerMinute, h.logger)).
			Post("/slots/{slotID}/bookings", h.BookSlotHandler)
		r.Get("/bookings", h.ListBookingsHandler)
		r.Post("/bookings/{bookingID}/cancel", h.CancelBookingHandler)

		r.Get("/notifications", h.ListNotificationsHandler)
		r.Post("/notifications/read-all", h.MarkAllNotificationsReadHandler)
		r.Post("/notifications/{notificationID}/read", h.MarkNotificationReadHandler)
		r.Get("/activity", h.ListActivityHandler)

		r.Get("/subscription", h.GetSubscriptionHandler)
		r.Post("/subscription/cancel", h.CancelSubscriptionHandler)
	})

	return r
}
