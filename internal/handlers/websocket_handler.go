package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/picksy/syncd/internal/events"
	"github.com/picksy/syncd/internal/observability"
)

// WebSocketHandler upgrades connections onto the event hub
type WebSocketHandler struct {
	hub      *events.Hub
	upgrader websocket.Upgrader
	log      *observability.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler. allowedOrigins of
// nil or ["*"] accepts any origin.
func NewWebSocketHandler(hub *events.Hub, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: observability.WithField("component", "websocket"),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// HandleConnection upgrades HTTP to WebSocket and manages the connection.
// ?topics=library,presence subscribes up front; without it the client
// receives every event.
// @Summary Event stream
// @Tags events
// @Router /ws [get]
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	for _, topic := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if topic = strings.TrimSpace(topic); topic != "" {
			client.Subscribe(topic)
		}
	}

	if err := h.hub.Register(r.Context(), client); err != nil {
		conn.Close()
		return
	}
	h.log.Debugf("websocket client %s connected", client.ID)

	// Start the write pump in a goroutine
	go client.WritePump()

	// Run the read pump (blocks until connection closes)
	client.ReadPump()
}
