package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"pollroom/pkg/types"
)

// HistorySource reads archived completed-poll records.
type HistorySource interface {
	SessionHistory(ctx context.Context, sessionID string) ([]*types.PollRecord, error)
}

// StatsSource reports live-connection counts.
type StatsSource interface {
	Stats() map[string]int
}

// Server exposes the read-only HTTP surface: health checks and completed-poll
// history. No business logic lives here, only HTTP handling and JSON
// serialization.
type Server struct {
	history HistorySource
	stats   StatsSource
	mux     *http.ServeMux
}

// NewServer creates the API server. history may be nil when the archive is
// disabled.
func NewServer(history HistorySource, stats StatsSource) *Server {
	s := &Server{
		history: history,
		stats:   stats,
		mux:     http.NewServeMux(),
	}

	s.mux.Handle("/api/sessions/", s.corsMiddleware(http.HandlerFunc(s.handleSessionHistory)))
	s.mux.Handle("/health", s.corsMiddleware(http.HandlerFunc(s.healthCheck)))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleSessionHistory serves GET /api/sessions/{id}/history.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "history" {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}
	sessionID := parts[0]

	if s.history == nil {
		s.sendError(w, "History archive disabled", http.StatusNotFound)
		return
	}

	records, err := s.history.SessionHistory(r.Context(), sessionID)
	if err != nil {
		log.Printf("History query failed: session=%s err=%v", sessionID, err)
		s.sendError(w, "Failed to read history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*types.PollRecord{}
	}

	s.sendJSON(w, map[string]interface{}{
		"session_id": sessionID,
		"history":    records,
	}, http.StatusOK)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.sendJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"stats":     s.stats.Stats(),
	}, http.StatusOK)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, payload interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, map[string]string{"error": message}, status)
}
