// Package api exposes the simulation engine over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/krx-alertor/maps-engine/internal/marketdata"
	"github.com/krx-alertor/maps-engine/internal/simulator"
	"github.com/krx-alertor/maps-engine/internal/stats"
	"github.com/krx-alertor/maps-engine/pkg/types"
)

// Server runs simulations on request and keeps finished results in memory.
type Server struct {
	store    *marketdata.Store
	logger   *zap.Logger
	registry *prometheus.Registry
	sink     stats.Sink

	mu      sync.RWMutex
	results map[string]*types.Result
}

// NewServer creates a server with its own Prometheus registry.
func NewServer(store *marketdata.Store, logger *zap.Logger) *Server {
	registry := prometheus.NewRegistry()
	return &Server{
		store:    store,
		logger:   logger,
		registry: registry,
		sink:     stats.NewPrometheusSink(registry),
		results:  make(map[string]*types.Result),
	}
}

// Handler returns the full HTTP handler, CORS included.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/v1/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/simulations", s.handleRunSimulation).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/simulations", s.handleListSimulations).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/simulations/{id}", s.handleGetSimulation).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRunSimulation runs a simulation synchronously. The request body is
// a SimulationConfig in JSON; omitted fields keep their defaults.
func (s *Server) handleRunSimulation(w http.ResponseWriter, r *http.Request) {
	cfg := types.DefaultSimulationConfig()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	table, err := s.store.LoadTable(cfg.Tickers, cfg.IndexTicker)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "load market data: "+err.Error())
		return
	}

	engine, err := simulator.NewEngine(cfg, table, s.sink, s.logger)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := engine.Run(r.Context())

	s.mu.Lock()
	s.results[result.RunID] = result
	s.mu.Unlock()

	s.logger.Info("simulation completed via api",
		zap.String("runId", result.RunID),
		zap.Int("trades", result.NumTrades))
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	result, ok := s.results[id]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, http.StatusNotFound, "simulation not found: "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleListSimulations returns one summary line per stored result.
func (s *Server) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	type summary struct {
		RunID          string  `json:"runId"`
		TotalReturnPct float64 `json:"totalReturnPct"`
		NumTrades      int     `json:"numTrades"`
	}

	s.mu.RLock()
	summaries := make([]summary, 0, len(s.results))
	for _, result := range s.results {
		summaries = append(summaries, summary{
			RunID:          result.RunID,
			TotalReturnPct: result.TotalReturnPct,
			NumTrades:      result.NumTrades,
		})
	}
	s.mu.RUnlock()

	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
