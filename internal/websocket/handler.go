package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"goalseek/internal/auth"
	"goalseek/pkg/interfaces"
	"goalseek/pkg/types"
)

// MessageRouter dispatches one inbound frame on behalf of a connection.
// Declared here (not imported) so the handler can be tested with a stub.
type MessageRouter interface {
	Route(conn interfaces.Connection, data []byte)
}

// InterventionCleaner is the slice of the broker the orchestrator needs
// for full shutdown
type InterventionCleaner interface {
	Clear()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser dashboards connect cross-origin; token auth is the gate
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler owns the per-connection lifecycle:
// Connecting → Authenticated → Active → Closed.
// ARCHITECTURAL DISCOVERY: Capacity is checked before authentication because
// it is cheaper and a full server should fail fast without spending an
// auth-service round trip
type Handler struct {
	registry *Registry
	verifier interfaces.TokenVerifier
	router   MessageRouter
	broker   InterventionCleaner

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	bufferSize   int
}

// HandlerConfig carries the transport knobs for new connections
type HandlerConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// NewHandler creates a new connection lifecycle handler
func NewHandler(registry *Registry, verifier interfaces.TokenVerifier, router MessageRouter, broker InterventionCleaner, cfg HandlerConfig) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	return &Handler{
		registry:     registry,
		verifier:     verifier,
		router:       router,
		broker:       broker,
		pingInterval: cfg.PingInterval,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		bufferSize:   cfg.BufferSize,
	}
}

// HandleWebSocket upgrades the request and walks the connect-time state
// machine: capacity → authentication → registration → connected ack.
// Either connect-time failure sends a single error frame and force-closes
// with the matching close code; the connection never reaches Active.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, h.bufferSize, h.writeTimeout)

	// Capacity first: reject without consulting the verifier
	if h.registry.AtCapacity() {
		h.rejectConnection(conn, types.ErrCodeMaxConnections, "Max connections reached", types.CloseMaxConnections)
		return
	}

	token := auth.ExtractBearer(r.Header.Get("Authorization"))
	if token == "" {
		h.rejectConnection(conn, types.ErrCodeAuthError, "Authorization required", types.CloseAuthError)
		return
	}

	identity, err := h.verifier.VerifyToken(r.Context(), token)
	if err != nil {
		log.Printf("Authentication failed: %v", err)
		h.rejectConnection(conn, types.ErrCodeAuthError, "Authentication failed", types.CloseAuthError)
		return
	}

	conn.SetIdentity(identity)

	// Registration re-checks capacity atomically; racing admissions can
	// still lose here
	if err := h.registry.Register(conn); err != nil {
		log.Printf("Failed to register connection for %s: %v", identity.UserID, err)
		h.rejectConnection(conn, types.ErrCodeMaxConnections, "Max connections reached", types.CloseMaxConnections)
		return
	}

	// First frame's correlation id is server-generated: the client has not
	// sent one yet
	if err := conn.WriteJSON(&types.Envelope{
		Type:          types.MessageTypeConnected,
		CorrelationID: uuid.New().String(),
		UserID:        identity.UserID,
	}); err != nil {
		log.Printf("Failed to send connected frame to %s: %v", identity.UserID, err)
		h.registry.Remove(conn)
		_ = conn.Close()
		return
	}

	log.Printf("Connection established: user=%s role=%s", identity.UserID, identity.Role)

	go h.handleConnection(conn)
}

// rejectConnection sends one error frame then closes with the given code
func (h *Handler) rejectConnection(conn *Connection, errCode, message string, closeCode int) {
	if err := conn.WriteJSON(&types.Envelope{
		Type:    types.MessageTypeError,
		Code:    errCode,
		Message: message,
	}); err != nil {
		log.Printf("Failed to send rejection frame: %v", err)
	}
	_ = conn.CloseWithCode(closeCode, message)
}

// handleConnection runs the Active state: heartbeat plus the read loop.
// Messages are processed in arrival order; routing is synchronous so
// per-connection ordering holds.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// Pending interventions owned by this connection are deliberately
		// NOT cancelled: they stay resolvable over HTTP until they expire
		h.registry.Remove(conn)
		_ = conn.Close()
		log.Printf("Connection closed: user=%s", conn.Identity().UserID)
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
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
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			h.router.Route(conn, data)
		}
	}
}

// Cleanup closes every registered connection with the normal close code and
// drops every pending intervention. Full shutdown only; per-connection
// teardown goes through handleConnection's deferred cleanup.
func (h *Handler) Cleanup() {
	h.registry.CloseAll(types.CloseNormal, "server shutdown")
	if h.broker != nil {
		h.broker.Clear()
	}
}
