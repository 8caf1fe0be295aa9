package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mazequiz/internal/chapter"
	"mazequiz/pkg/interfaces"
	"mazequiz/pkg/types"
)

// Registry is the connection-stats surface the server reads. Kept as a
// local interface so the API layer stays decoupled from the transport.
type Registry interface {
	Stats() map[string]int
}

// Server is the HTTP surface: health, connection stats, leaderboard
// and score queries. No business logic lives here.
type Server struct {
	store    interfaces.SessionStore
	engine   *chapter.Engine
	registry Registry
	ranking  int
	router   *http.ServeMux
}

// NewServer creates the API server. rankingSize caps /api/ranking.
func NewServer(store interfaces.SessionStore, engine *chapter.Engine, registry Registry, rankingSize int) *Server {
	s := &Server{
		store:    store,
		engine:   engine,
		registry: registry,
		ranking:  rankingSize,
		router:   http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
	s.router.Handle("/api/stats", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleStats))))
	s.router.Handle("/api/ranking", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRanking))))
	s.router.Handle("/api/users/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleUserScore))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type RankingResponse struct {
	Ranking []*types.RankingEntry `json:"ranking"`
}

type ScoreResponse struct {
	UserID string `json:"user_id"`
	Score  int    `json:"score"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /health - store connectivity plus connection counters.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.Stats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// GET /api/stats - registry counters for monitoring.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	json.NewEncoder(w).Encode(s.registry.Stats())
}

// GET /api/ranking - current coin leaderboard.
func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries, err := s.store.FindTopRanking(r.Context(), s.ranking)
	if err != nil {
		s.sendError(w, "Failed to load ranking", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(RankingResponse{Ranking: entries})
}

// GET /api/users/{id}/score - total maze score across all chapters.
func (s *Server) handleUserScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/users/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "score" {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}

	userID := parts[0]
	if !types.IsValidUserID(userID) {
		s.sendError(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	score, err := s.engine.GetTotalScore(r.Context(), userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			s.sendError(w, "User not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to compute score", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(ScoreResponse{UserID: userID, Score: score})
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(w, r)
	})
}
