// Package server assembles the HTTP surface of the engine.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/diewo77/go-budgets/actor"
	"github.com/diewo77/go-budgets/httpx"
	"github.com/diewo77/go-budgets/internal/handlers"
	"github.com/diewo77/go-budgets/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// New constructs the root http.Handler with all routes and middlewares applied.
func New(engine *services.Engine, db *gorm.DB, registry *prometheus.Registry, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// --- Health endpoints ---
	//revive:disable:unused-parameter simple handlers intentionally ignore *http.Request
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.WithContext(r.Context()).Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	//revive:enable:unused-parameter
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	handlers.NewBudgetHandler(engine.Budgets, log).Register(mux)
	handlers.NewOrderHandler(engine.Orders, log).Register(mux)
	handlers.NewContractHandler(engine.Contracts, log).Register(mux)
	handlers.NewReportHandler(engine.Guard, engine.Audit, engine.Alerts, log).Register(mux)
	handlers.NewReferenceHandler(engine.Reference, engine.Forecast, log).Register(mux)

	return withRecover(log, withLogging(log, actor.Middleware(mux)))
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"actor", actor.OrSystem(r.Context()),
			"duration", time.Since(start))
	})
}

// withRecover answers a panic with a JSON 500, unless the handler already
// started the response, in which case it is only logged.
func withRecover(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		defer func() {
			if p := recover(); p != nil {
				log.Error("panic serving request", "path", r.URL.Path, "panic", p, "response_started", rec.wroteHeader)
				if !rec.wroteHeader {
					httpx.JSONError(rec, http.StatusInternalServerError, string(services.KindOperational), nil)
				}
			}
		}()
		next.ServeHTTP(rec, r)
	})
}
