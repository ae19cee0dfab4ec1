// Package dashboard serves a small read-only JSON API over the persisted
// scan history, intended for a local UI or curl.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/vdogroup/arbwatch/internal/storage"
)

// Server exposes the dashboard API
type Server struct {
	db   *storage.DB
	port int
	log  *logrus.Logger
}

// New creates a dashboard server
func New(db *storage.DB, port int, log *logrus.Logger) *Server {
	return &Server{db: db, port: port, log: log}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/opportunities", s.handleOpportunities)
		r.Get("/stats", s.handleStats)
		r.Get("/scans", s.handleScans)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("port", s.port).Info("Dashboard server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("dashboard server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	sport := r.URL.Query().Get("sport")
	limit := queryInt(r, "limit", 50)

	opps, err := s.db.RecentOpportunities(r.Context(), sport, limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to load opportunities")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"opportunities": opportunityViews(opps)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to load stats")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	scans, err := s.db.RecentScans(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to load scans")
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"scans": scans})
}

// opportunityView is the API shape for one opportunity, with legs decoded
// from their stored JSON.
type opportunityView struct {
	ID               int64           `json:"id"`
	Sport            string          `json:"sport"`
	SportLabel       string          `json:"sport_label"`
	Event            string          `json:"event"`
	Market           string          `json:"market"`
	Legs             json.RawMessage `json:"legs"`
	ProfitPct        float64         `json:"profit_pct"`
	BaseStake        float64         `json:"base_stake"`
	GuaranteedReturn float64         `json:"guaranteed_return"`
	CommenceTS       int64           `json:"commence_ts"`
	DetectedTS       int64           `json:"detected_ts"`
}

func opportunityViews(opps []storage.Opportunity) []opportunityView {
	views := make([]opportunityView, 0, len(opps))
	for _, o := range opps {
		views = append(views, opportunityView{
			ID:               o.ID,
			Sport:            o.SportKey,
			SportLabel:       o.SportLabel,
			Event:            o.EventName,
			Market:           o.MarketLabel,
			Legs:             json.RawMessage(o.LegsJSON),
			ProfitPct:        o.ProfitPct,
			BaseStake:        o.BaseStake,
			GuaranteedReturn: o.GuaranteedReturn,
			CommenceTS:       o.CommenceTS,
			DetectedTS:       o.DetectedTS,
		})
	}
	return views
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
