// Package httpapi is the HTTP surface of the cashier service.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cashier-settlement-go/internal/auth"
	"cashier-settlement-go/internal/metrics"
	"cashier-settlement-go/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type RouterParams struct {
	Handler        *Handler
	Verifier       *auth.JWTVerifier
	Metrics        *metrics.Metrics
	WebhookSecret  string
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(p RouterParams) *chi.Mux {
	h := p.Handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(p.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: p.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", headerIdempotencyKey},
		ExposedHeaders: []string{headerReplay, "X-Request-Id"},
	}))

	r.Get("/healthz", h.Health)
	if p.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(VerifySignature(p.WebhookSecret)).Post("/webhooks/provider", h.ProviderWebhook)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(p.Verifier, writeError))

			r.Post("/deposits", h.CreateDeposit)

			r.Route("/withdrawals", func(r chi.Router) {
				r.Post("/", h.SubmitWithdrawal)
				r.Post("/{id}/approve", h.Approve())
				r.Post("/{id}/reject", h.Reject())
				r.Post("/{id}/payout", h.StartPayout)
				r.Post("/{id}/retry", h.RetryPayout)
				r.Post("/{id}/mark-paid", h.MarkPaid())
				r.Post("/{id}/mark-failed", h.MarkFailed())
			})

			r.Route("/players/{id}", func(r chi.Router) {
				r.Get("/wallets/{currency}", h.GetBalance)
				r.Get("/transactions", h.ListTransactions)
			})

			r.Get("/transactions/{id}", h.GetTransaction)
		})
	})

	return r
}

// accessLog logs each request with zap and feeds the HTTP collectors.
func accessLog(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			if m != nil {
				m.ObserveRequest(r.Method, route, ww.Status(), elapsed.Seconds())
			}

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
			}
			if a, ok := models.ActorFromContext(r.Context()); ok {
				fields = append(fields, zap.String("actor", a.String()))
			}
			if key := r.Header.Get(headerIdempotencyKey); key != "" {
				fields = append(fields, zap.String("idempotency_key", key))
			}
			zap.L().Info("HTTP request", fields...)
		})
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down within shutdownTimeout.
func Serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		zap.L().Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
