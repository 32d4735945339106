package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"fuelpay/internal/checkout"
	"fuelpay/internal/config"
	"fuelpay/internal/http/handlers"
	middlewarex "fuelpay/internal/http/middleware"
	"fuelpay/internal/store/repositories"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterDependencies holds everything the HTTP surface needs.
type RouterDependencies struct {
	Config   config.Cfg
	Checkout *checkout.Service
	Ledger   repositories.TransactionRepository
}

// NewRouter creates the station-facing HTTP router.
func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	// Health check (public)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"realtime": deps.Config.Realtime.Enabled,
		})
	})

	deadline := time.Duration(deps.Config.Payment.DeadlineSec) * time.Second

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarex.StationAuth(deps.Config))

		r.Post("/payments", handlers.Pay(deps.Checkout, deadline))
		r.Post("/payments/initiate", handlers.Initiate(deps.Checkout))
		r.Get("/payments/{checkoutRequestID}", handlers.Get(deps.Ledger))
		r.Get("/payments", handlers.List(deps.Ledger))
	})

	return r
}
