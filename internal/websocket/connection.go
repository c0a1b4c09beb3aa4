package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"goalseek/pkg/types"
)

// Connection implements the interfaces.Connection interface.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized; a single
// writer goroutine drains writeCh so frames go out in enqueue order and the
// close frame is guaranteed to follow any error frame queued before it
type Connection struct {
	conn          *websocket.Conn
	writeCh       chan outFrame // buffered so routing never blocks on a slow client
	writeDone     chan struct{}
	writeTimeout  time.Duration
	identity      types.Identity
	connectedAt   time.Time
	authenticated bool
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	mu            sync.RWMutex // protects identity fields
}

type outFrame struct {
	messageType int
	data        []byte
}

// NewConnection creates a new WebSocket connection wrapper
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan outFrame, bufferSize),
		writeDone:    make(chan struct{}),
		writeTimeout: writeTimeout,
		connectedAt:  time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	defer close(c.writeDone)

	for {
		select {
		case f := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
				return
			}
			if f.messageType == websocket.CloseMessage {
				return // close frame is always the last thing written
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON sends a JSON frame to the client, thread-safe
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- outFrame{websocket.TextMessage, data}:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// CloseWithCode sends a close frame carrying code and reason, waits for the
// writer to flush anything queued before it, then tears the connection down.
// FUNCTIONAL DISCOVERY: Routing the close frame through the write channel is
// what keeps "error frame then close" ordering observable by clients
func (c *Connection) CloseWithCode(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)

	select {
	case c.writeCh <- outFrame{websocket.CloseMessage, msg}:
		// Wait for the writer to drain up to and including the close frame
		select {
		case <-c.writeDone:
		case <-time.After(c.writeTimeout):
		}
	case <-time.After(c.writeTimeout):
	case <-c.ctx.Done():
	}

	return c.Close()
}

// Close closes the connection and cleans up resources
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetIdentity attaches the authenticated identity to the connection
func (c *Connection) SetIdentity(identity types.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
	c.authenticated = true
}

// Identity returns the authenticated identity
func (c *Connection) Identity() types.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// IsAuthenticated reports whether credentials have been attached
func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// ConnectedAt returns when this connection was accepted
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}
