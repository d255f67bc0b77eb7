package admin

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Server runs the admin router on its own listener.
type Server struct {
	http   *http.Server
	hub    *Hub
	ln     net.Listener
	logger *slog.Logger
	done   chan struct{}
}

// NewServer creates an admin server for addr. It does not bind until Start.
func NewServer(addr string, src StatsSource, gatherer prometheus.Gatherer, logger *slog.Logger, opts ...RouterOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hub := NewHub(src, DefaultStreamInterval)
	opts = append(opts, WithHub(hub))
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(src, gatherer, opts...),
			ReadHeaderTimeout: 5 * time.Second,
		},
		hub:    hub,
		logger: logger.With("component", "admin"),
		done:   make(chan struct{}),
	}
}

// Start binds the address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		defer close(s.done)
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server stopped", "error", err)
		}
	}()
	s.logger.Info("admin endpoint listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown closes stream clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	s.hub.Close()
	err := s.http.Shutdown(ctx)
	<-s.done
	return err
}
