package ws

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server upgrades HTTP requests into transport connections.
type Server struct {
	upgrader websocket.Upgrader
	opts     Options
	logger   *slog.Logger
}

// NewServer builds an upgrader with the given connection options.
func NewServer(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Companion clients are embedded apps, not browsers with a
			// stable origin; the session layer owns auth.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Upgrade performs the WebSocket handshake and starts the connection's
// reader and writer.
func (s *Server) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	wsc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return newConn(wsc, s.opts, s.logger, true), nil
}
