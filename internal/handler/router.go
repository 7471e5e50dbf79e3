package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/pairexchange/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// userHeader carries the caller's identity. It is trusted as-is.
const userHeader = "X-User-ID"

// requestIDHeader is echoed back on every response.
const requestIDHeader = "X-Request-ID"

// Services bundles the application services exposed over HTTP.
type Services struct {
	Pairs    *service.PairService
	Exchange *service.ExchangeService
	Accounts *service.AccountService
}

// Options tunes the router.
type Options struct {
	// AmountScale is the number of decimal places used for prices on the wire.
	AmountScale int32
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Health, when set, is checked by GET /healthz.
	Health func(context.Context) error
}

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(svc Services, opts Options, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	pairH := NewPairHandler(svc.Pairs, svc.Exchange, opts.AmountScale)
	orderH := NewOrderHandler(svc.Exchange, opts.AmountScale)
	accountH := NewAccountHandler(svc.Accounts)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(r.Context()); err != nil {
				logger.Warn("health check failed", slog.String("error", err.Error()))
				WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Post("/pairs", pairH.Create)
	r.Get("/pairs", pairH.List)
	r.Get("/pairs/{pair_id}", pairH.Get)
	r.Post("/pairs/{pair_id}/settle", pairH.Settle)
	r.Get("/pairs/{pair_id}/trades", pairH.ListTrades)

	r.Post("/orders", orderH.PlaceOrder)
	r.Get("/orders", orderH.ListOrders)
	r.Get("/orders/{order_id}", orderH.GetOrder)
	r.Delete("/orders/{order_id}", orderH.CancelOrder)

	r.Post("/accounts/{user_id}/deposits", accountH.Deposit)
	r.Get("/accounts/{user_id}/balances", accountH.Balances)

	return r
}

// requestID assigns each request a correlation id, keeping a well-formed
// one supplied by the client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", r.Header.Get(requestIDHeader)),
				slog.String("user", r.Header.Get(userHeader)),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON rejects POST, PUT and PATCH requests whose Content-Type is
// not application/json. Bodiless POSTs such as settle are let through.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if r.ContentLength != 0 && !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
