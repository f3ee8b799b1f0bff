package rest

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens in the CORS middleware for the rest of
	// the API; the stream accepts all origins like the playground does.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// streamMessages upgrades to a WebSocket and forwards every message
// appended for the user, client and server origins alike, as JSON
// frames until the peer disconnects.
func (h *Handler) streamMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if _, err := h.registry.GetUser(r.Context(), userID); err != nil {
		h.fail(w, r, err)
		return
	}

	// Subscribe before the handshake completes so no message published
	// right after the client connects is missed.
	feed, cancel := h.registry.Watch(userID)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		h.logger.Debug("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.StreamClients.Inc()
		defer h.metrics.StreamClients.Dec()
	}
	h.logger.Info("message stream opened", "user_id", userID)

	// Read pump: discard inbound frames, notice the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-feed:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("stream write failed", "user_id", userID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			h.logger.Info("message stream closed", "user_id", userID)
			return
		case <-r.Context().Done():
			return
		}
	}
}
