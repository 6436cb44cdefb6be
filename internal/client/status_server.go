package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pathlearn/fedclient/internal/telemetry"
	"github.com/pathlearn/fedclient/pkg/logger"
)

// StatusServer serves local, read-only diagnostics for the running
// client: the orchestrator snapshot, the buffered-data summary, and
// prometheus metrics. It binds to loopback by default and carries no
// authentication.
type StatusServer struct {
	service *Service
	server  *http.Server
}

func NewStatusServer(addr string, service *Service) *StatusServer {
	s := &StatusServer{service: service}

	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/data/summary", s.handleDataSummary).Methods(http.MethodGet)
	router.Handle("/metrics", telemetry.MetricsHandler()).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It blocks, so callers run it on its own
// goroutine.
func (s *StatusServer) Start() error {
	log := logger.WithComponent("status")
	log.Info().Str("addr", s.server.Addr).Msg("Status server listening")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Status())
}

func (s *StatusServer) handleDataSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Federated().GetTrainingDataSummary())
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log := logger.WithComponent("status")
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
