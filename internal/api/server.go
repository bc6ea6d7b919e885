package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stocklens/yardbot/internal/processor"
	"github.com/stocklens/yardbot/internal/reliability"
)

// StatsSource reports processing counters. *processor.Processor satisfies it.
type StatsSource interface {
	Stats() processor.Stats
	Reliability() []reliability.TypeScore
}

type Server struct {
	router *chi.Mux
	port   int
	stats  StatsSource
}

func NewServer(port int, stats StatsSource) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		stats:  stats,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/yardbot/status", s.status)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type statusResponse struct {
	Agent       string                  `json:"agent"`
	Stats       processor.Stats         `json:"stats"`
	Reliability []reliability.TypeScore `json:"reliability,omitempty"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Agent: "yardbot"}
	if s.stats != nil {
		resp.Stats = s.stats.Stats()
		resp.Reliability = s.stats.Reliability()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
