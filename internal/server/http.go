package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pitchside/pitchside/internal/auth"
	"github.com/pitchside/pitchside/internal/config"
	"github.com/pitchside/pitchside/internal/ranking"
	"github.com/pitchside/pitchside/internal/store"
	"github.com/redis/go-redis/v9"
)

// Credential endpoints are a brute-force target; the limiter is tuned for
// login attempts, not API traffic.
const (
	authRateLimit = 5
	authRateBurst = 10
)

type Server struct {
	cfg     *config.Config
	db      *pgxpool.Pool
	rdb     *redis.Client
	hub     *Hub
	logger  *slog.Logger
	mux     *http.ServeMux
	metrics *Metrics
	auth    *auth.Service
	stats   *store.StatsStore
	ranking *ranking.Service
}

func New(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, hub *Hub, metrics *Metrics, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		db:      db,
		rdb:     rdb,
		hub:     hub,
		logger:  logger,
		mux:     http.NewServeMux(),
		metrics: metrics,
	}
	s.routes()
	return s
}

func (s *Server) SetAuthService(svc *auth.Service) {
	s.auth = svc
}

func (s *Server) SetRankingService(svc *ranking.Service) {
	s.ranking = svc
}

func (s *Server) SetStatsStore(st *store.StatsStore) {
	s.stats = st
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.metrics.ServeHTTP)
	s.mux.Handle("GET /ws", s.hub)

	// Account endpoints sit behind a per-IP limiter; the game socket and
	// the read-only API do not.
	limiter := NewRateLimiter(authRateLimit, authRateBurst, s.logger)
	s.mux.Handle("POST /api/auth/register", limiter.Limit(http.HandlerFunc(s.handleRegister)))
	s.mux.Handle("POST /api/auth/login", limiter.Limit(http.HandlerFunc(s.handleLogin)))

	// Stats and ranking
	s.mux.HandleFunc("GET /api/stats/{id}", s.handleGetStats)
	s.mux.HandleFunc("GET /api/ranking", s.handleRanking)

	// Static files for the browser client
	s.mux.Handle("GET /", http.FileServer(http.Dir("web")))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}

	if err := s.db.Ping(ctx); err != nil {
		status["db"] = "down"
		status["status"] = "degraded"
	} else {
		status["db"] = "ok"
	}

	if err := s.rdb.Ping(ctx).Err(); err != nil {
		status["redis"] = "down"
		status["status"] = "degraded"
	} else {
		status["redis"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if status["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("write json", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	token, ident, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, authResponse{Token: token, UserID: ident.UserID, Username: ident.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	token, ident, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, authResponse{Token: token, UserID: ident.UserID, Username: ident.Username})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	uid, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	st, err := s.stats.Get(r.Context(), uid)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if st == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	if s.ranking == nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	count := 10
	if c := r.URL.Query().Get("count"); c != "" {
		if n, err := strconv.Atoi(c); err == nil && n > 0 && n <= 100 {
			count = n
		}
	}
	entries, err := s.ranking.GlobalRanking(r.Context(), count)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.UserStats{}
	}
	writeJSON(w, entries)
}

func (s *Server) Handler() http.Handler {
	return ChainMiddleware(s.mux,
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}
