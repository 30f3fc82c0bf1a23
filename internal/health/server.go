package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ReconcilerStatus exposes the reconciliation loop's heartbeat.
type ReconcilerStatus interface {
	LastTick() time.Time
}

// RatesStatus exposes the rate cache's freshness.
type RatesStatus interface {
	HasFreshRate() bool
	LastRefresh() time.Time
}

// StoreStatus exposes ledger reachability and the metrics counters.
type StoreStatus interface {
	Ping(ctx context.Context) error
	PendingCount(ctx context.Context) (int, error)
	TotalEntries(ctx context.Context) (int64, error)
}

// Server answers the hosting platform's liveness probes and serves a small
// JSON metrics document for the external monitor.
type Server struct {
	reconciler ReconcilerStatus
	rates      RatesStatus
	store      StoreStatus

	// reconcileInterval drives the staleness threshold: the loop must
	// have ticked within twice its interval to count as healthy.
	reconcileInterval time.Duration

	httpServer *http.Server
}

func NewServer(port int, reconcileInterval time.Duration, reconciler ReconcilerStatus, rates RatesStatus, store StoreStatus) *Server {
	s := &Server{
		reconciler:        reconciler,
		rates:             rates,
		store:             store,
		reconcileInterval: reconcileInterval,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/ping", s.handlePing)
	r.Get("/metrics", s.handleMetrics)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() {
	zap.L().Info("Health server listening", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("Health server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, 3)
	healthy := true

	tickAge := time.Since(s.reconciler.LastTick())
	if s.reconciler.LastTick().IsZero() || tickAge > 2*s.reconcileInterval {
		checks["reconciler"] = fmt.Sprintf("stale: last tick %s ago", tickAge.Round(time.Second))
		healthy = false
	} else {
		checks["reconciler"] = "ok"
	}

	if s.rates.HasFreshRate() {
		checks["rates"] = "ok"
	} else {
		checks["rates"] = "no fresh exchange rate"
		healthy = false
	}

	if err := s.store.Ping(r.Context()); err != nil {
		checks["ledger"] = fmt.Sprintf("unreachable: %v", err)
		healthy = false
	} else {
		checks["ledger"] = "ok"
	}

	resp := healthResponse{Status: "healthy", Checks: checks}
	code := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, resp)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

type metricsResponse struct {
	PendingInvoices       int     `json:"pending_invoices"`
	RateRefreshAgeSeconds float64 `json:"rate_refresh_age_seconds"`
	LastTickAgeSeconds    float64 `json:"last_tick_age_seconds"`
	LedgerEntries         int64   `json:"ledger_entries"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	pending, err := s.store.PendingCount(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	entries, err := s.store.TotalEntries(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, metricsResponse{
		PendingInvoices:       pending,
		RateRefreshAgeSeconds: ageSeconds(s.rates.LastRefresh()),
		LastTickAgeSeconds:    ageSeconds(s.reconciler.LastTick()),
		LedgerEntries:         entries,
	})
}

func ageSeconds(t time.Time) float64 {
	if t.IsZero() {
		return -1
	}
	return time.Since(t).Seconds()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to encode health response", zap.Error(err))
	}
}
