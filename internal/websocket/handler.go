package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"pollroom/internal/hub"
	"pollroom/internal/router"
	"pollroom/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the deployment fronting this server.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests, assigns connection identities and feeds
// decoded requests into the hub for serialized processing. Connections carry
// no credentials at upgrade time; a peer becomes presenter or participant
// through the events it sends.
type Handler struct {
	registry     *Registry
	eventRouter  *router.Router
	eventHub     *hub.Hub
	pingInterval time.Duration
	readTimeout  time.Duration
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, eventRouter *router.Router, eventHub *hub.Hub, pingInterval, readTimeout time.Duration) *Handler {
	return &Handler{
		registry:     registry,
		eventRouter:  eventRouter,
		eventHub:     eventHub,
		pingInterval: pingInterval,
		readTimeout:  readTimeout,
	}
}

// HandleWebSocket upgrades the request and runs the connection lifecycle.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn)
	h.registry.Add(wsConn)
	log.Printf("Connection opened: conn=%s remote=%s", wsConn.ID(), r.RemoteAddr)

	go h.handleConnection(wsConn)
}

// handleConnection reads inbound frames until the peer goes away, then
// submits the disconnect for serialized cleanup.
func (h *Handler) handleConnection(conn *Connection) {
	connID := conn.ID()
	defer func() {
		h.registry.Remove(connID)
		_ = conn.Close()
		if err := h.eventHub.Submit(func() { h.eventRouter.HandleDisconnect(connID) }); err != nil {
			log.Printf("Disconnect handling dropped: conn=%s err=%v", connID, err)
		}
		log.Printf("Connection closed: conn=%s", connID)
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: conn=%s err=%v", connID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req types.Request
		if err := json.Unmarshal(data, &req); err != nil {
			if werr := conn.WriteJSON(&types.Event{Type: types.EventError, Reason: "malformed request"}); werr != nil {
				return
			}
			continue
		}

		request := req
		if err := h.eventHub.Submit(func() { h.eventRouter.HandleRequest(connID, &request) }); err != nil {
			log.Printf("Request dropped: conn=%s type=%s err=%v", connID, req.Type, err)
			if werr := conn.WriteJSON(&types.Event{Type: types.EventError, Reason: "server busy"}); werr != nil {
				return
			}
		}
	}
}
