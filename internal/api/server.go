// Package api exposes the marketplace core over HTTP+JSON: campaign drafting
// and lifecycle, submission decisions, the payout pipeline, and creator
// analytics. Handlers translate the domain error taxonomy into status codes
// and leave all decision making to internal/logic.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clipbid/marketplace/internal/auth"
	"github.com/clipbid/marketplace/internal/config"
	"github.com/clipbid/marketplace/internal/db"
	"github.com/clipbid/marketplace/internal/events"
	"github.com/clipbid/marketplace/internal/logic"
	"github.com/clipbid/marketplace/internal/middleware"
	"github.com/clipbid/marketplace/internal/models"
	"github.com/clipbid/marketplace/internal/observability"
	"github.com/clipbid/marketplace/internal/store"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger      *zap.Logger
	Store       store.Store
	Redis       *db.RedisStore
	Events      events.Recorder
	Engine      *logic.Engine
	Payouts     *logic.Pipeline
	Metrics     observability.MetricsRegistry
	TokenSecret []byte
	TokenTTL    time.Duration
	Config      config.Config
}

// NewServer constructs a Server and its approval engine and payout pipeline.
func NewServer(logger *zap.Logger, st store.Store, rs *db.RedisStore, rec events.Recorder, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	pipeline := logic.NewPipeline(st, rec, rs, metrics, logger)
	if cfg.PayoutMaxRetries > 0 {
		pipeline.MaxRetries = cfg.PayoutMaxRetries
	}
	return &Server{
		Logger:      logger,
		Store:       st,
		Redis:       rs,
		Events:      rec,
		Engine:      logic.NewEngine(st, rec, rs, metrics, logger),
		Payouts:     pipeline,
		Metrics:     metrics,
		TokenSecret: []byte(cfg.TokenSecret),
		TokenTTL:    cfg.TokenTTL,
		Config:      cfg,
	}
}

// Routes builds the HTTP router. Health and metrics are open; everything
// else requires a signed principal token.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithRequestLogger(s.Logger))
	r.Use(middleware.WithRequestMetrics(s.Metrics))

	r.HandleFunc("/healthz", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	api := r.NewRoute().Subrouter()
	api.Use(s.withPrincipal)

	api.HandleFunc("/campaigns", s.ListCampaignsHandler).Methods("GET")
	api.HandleFunc("/campaigns", s.CreateCampaignHandler).Methods("POST")
	api.HandleFunc("/campaigns/{id}", s.GetCampaignHandler).Methods("GET")
	api.HandleFunc("/campaigns/{id}", s.UpdateCampaignHandler).Methods("PUT")
	api.HandleFunc("/campaigns/{id}/status", s.SetCampaignStatusHandler).Methods("POST")
	api.HandleFunc("/campaigns/{id}/validation", s.ValidateCampaignHandler).Methods("GET")
	api.HandleFunc("/campaigns/{id}/submissions", s.CreateSubmissionHandler).Methods("POST")

	api.HandleFunc("/submissions/{id}", s.GetSubmissionHandler).Methods("GET")
	api.HandleFunc("/submissions/{id}/views", s.SyncViewsHandler).Methods("POST")
	api.HandleFunc("/submissions/{id}/decision", s.DecideSubmissionHandler).Methods("POST")

	api.HandleFunc("/payouts/{id}", s.GetPayoutHandler).Methods("GET")
	api.HandleFunc("/payouts/{id}/status", s.AdvancePayoutHandler).Methods("POST")
	api.HandleFunc("/payouts/{id}/retry", s.RetryPayoutHandler).Methods("POST")

	api.HandleFunc("/creators/{id}/analytics", s.CreatorAnalyticsHandler).Methods("GET")

	return r
}

type principalKey struct{}

// withPrincipal extracts and verifies the bearer token and stashes the
// principal in the request context.
func (s *Server) withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		p, err := auth.Verify(strings.TrimPrefix(header, "Bearer "), s.TokenSecret, s.TokenTTL)
		if err != nil {
			if errors.Is(err, auth.ErrExpired) {
				http.Error(w, "token expired", http.StatusUnauthorized)
				return
			}
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principalFrom returns the principal stored by withPrincipal.
func principalFrom(r *http.Request) models.Principal {
	p, _ := r.Context().Value(principalKey{}).(models.Principal)
	return p
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := middleware.LoggerFromRequest(r, s.Logger)

	var (
		budgetErr     *models.BudgetExceededError
		transitionErr *models.InvalidTransitionError
		validationErr *models.ValidationError
		unauthErr     *models.UnauthorizedError
	)
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.As(err, &unauthErr):
		http.Error(w, unauthErr.Error(), http.StatusForbidden)
	case errors.As(err, &budgetErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":       "budget exceeded",
			"campaign_id": budgetErr.CampaignID,
			"attempted":   budgetErr.Attempted,
			"remaining":   budgetErr.Remaining,
		})
	case errors.Is(err, models.ErrConflict):
		http.Error(w, "conflicting concurrent update, retry", http.StatusConflict)
	case errors.As(err, &transitionErr):
		http.Error(w, transitionErr.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &validationErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":       "campaign incomplete",
			"campaign_id": validationErr.CampaignID,
			"reasons":     validationErr.Reasons,
		})
	default:
		logger.Error("request failed", zap.Error(err), zap.String("path", r.URL.Path))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
