// Package stream serves emitted events to websocket subscribers and
// exposes the metrics endpoint.
package stream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"pathwatch/internal/event"
	"pathwatch/internal/logging"
	"pathwatch/internal/metrics"
	"pathwatch/internal/watch"

	"github.com/gorilla/websocket"
)

const writeDeadline = 10 * time.Second

type Server struct {
	addr     string
	bus      *event.Bus[watch.Notification]
	registry *metrics.Registry
	logger   *logging.Logger
	server   *http.Server
	listener net.Listener
}

func NewServer(addr string, bus *event.Bus[watch.Notification], registry *metrics.Registry, logger *logging.Logger) *Server {
	if registry == nil {
		registry = metrics.Default
	}
	return &Server{
		addr:     addr,
		bus:      bus,
		registry: registry,
		logger:   logger,
	}
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	if s == nil {
		return errors.New("stream server is nil")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/metrics", s.handleMetrics)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{Handler: mux}

	go func() {
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) && s.logger != nil {
			s.logger.Warn("stream server stopped", map[string]string{
				"error": err.Error(),
			})
		}
	}()

	if s.logger != nil {
		s.logger.Info("stream server listening", map[string]string{
			"addr": listener.Addr().String(),
		})
	}
	return nil
}

// Addr returns the bound address, useful when the port was 0.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = s.registry.WritePrometheus(w)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "event stream unavailable", http.StatusInternalServerError)
		return
	}
	output, cancel := s.bus.Subscribe()
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case notification, ok := <-output:
				if !ok {
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
					return
				}
				if err := conn.WriteJSON(notification); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
