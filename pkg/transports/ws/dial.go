package ws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"
)

// Dial opens a client connection to a companion server.
func Dial(ctx context.Context, url string, opts Options, logger *slog.Logger) (*Conn, error) {
	wsc, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}
	return newConn(wsc, opts, logger, false), nil
}
