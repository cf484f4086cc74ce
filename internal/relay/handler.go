package relay

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/voxline/relay/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Telephony providers connect server-to-server without an Origin
		// header; authentication happens on the start frame's routing token
		return true
	},
}

// Handler upgrades telephony stream connections and hands each one to its
// own Coordinator
type Handler struct {
	config *config.Config
	deps   Deps
	logger zerolog.Logger
}

// NewHandler creates a WebSocket handler for the media-stream endpoint
func NewHandler(cfg *config.Config, deps Deps, logger zerolog.Logger) *Handler {
	return &Handler{
		config: cfg,
		deps:   deps,
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and runs the call to completion
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	c := NewCoordinator(conn, h.config, h.deps, h.logger)
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("media stream connected")
	c.Run()
}
