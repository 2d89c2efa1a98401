// Package api provides the HTTP status endpoints of the feeder.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
)

// FeedProvider exposes the running aggregated feeds by pair.
type FeedProvider interface {
	Feeds() map[string]*feeds.AggregatedFeed
}

// Server serves /health and /v1/prices.
type Server struct {
	addr     string
	provider FeedProvider
	server   *http.Server
	logger   *logging.Logger
}

// NewServer creates a status server.
func NewServer(addr string, provider FeedProvider, logger *logging.Logger) *Server {
	return &Server{
		addr:     addr,
		provider: provider,
		logger:   logger.With("component", "api"),
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/prices", s.handlePrices)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePrices returns the current median of every running feed. Feeds with
// no valid median at the moment are omitted.
func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	prices := make([]feeds.Price, 0)
	for _, feed := range s.provider.Feeds() {
		if median, ok := feed.Median(); ok {
			prices = append(prices, median)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(prices); err != nil {
		s.logger.Error("failed to encode prices response", "error", err)
	}
}
