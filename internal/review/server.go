// Package review serves the HTTP API for the manual review queue:
// flagged canonical events can be listed, approved, or re-flagged, and
// usage summaries inspected.
package review

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/regiodata/event-dedup/internal/store"
)

// Server exposes the review endpoints over a chi router.
type Server struct {
	store store.Store
}

// NewServer builds a review Server on the given store.
func NewServer(st store.Store) *Server {
	return &Server{store: st}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/review", s.handleListReview)
		r.Post("/review/{id}/approve", s.handleApprove)
		r.Post("/review/{id}/flag", s.handleFlag)
		r.Get("/canonical", s.handleListCanonical)
		r.Get("/canonical/{id}", s.handleGetCanonical)
		r.Get("/usage", s.handleUsage)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListReview(w http.ResponseWriter, r *http.Request) {
	filter := store.ReviewFilter{
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	queue, err := s.store.ListReviewQueue(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": queue,
		"count": len(queue),
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.setReview(w, r, false)
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request) {
	s.setReview(w, r, true)
}

func (s *Server) setReview(w http.ResponseWriter, r *http.Request, needsReview bool) {
	id := chi.URLParam(r, "id")
	if err := s.store.SetCanonicalReview(r.Context(), id, needsReview); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	zap.L().Info("review state changed",
		zap.String("id", id),
		zap.Bool("needs_review", needsReview),
	)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "needs_review": needsReview})
}

func (s *Server) handleListCanonical(w http.ResponseWriter, r *http.Request) {
	canonicals, err := s.store.ListCanonicalEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": canonicals,
		"count": len(canonicals),
	})
}

func (s *Server) handleGetCanonical(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.store.GetCanonicalEvent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if c == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleUsage returns the usage summary for ?batch_id=..., or for the
// period ?days=N (default 30) when no batch is given.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if batchID := r.URL.Query().Get("batch_id"); batchID != "" {
		summary, err := s.store.BatchUsageSummary(r.Context(), batchID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	days := queryInt(r, "days", 30)
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	summary, err := s.store.PeriodUsageSummary(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
