// internal/realtime/client.go

package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Maximum number of queued messages per client
	maxQueuedMessages = 256
)

var (
	ErrClientClosed   = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Dispatcher handles frames read from a client
type Dispatcher interface {
	Dispatch(ctx context.Context, c *Client, frame []byte)
}

// Client represents a websocket connection of one user
type Client struct {
	id     string
	userID int64
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewClient wraps an upgraded connection
func NewClient(conn *websocket.Conn, userID int64, logger *zap.Logger) *Client {
	logger = logging.OrNop(logger)
	id := uuid.NewString()
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, maxQueuedMessages),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("conn_id", id), zap.Int64("user_id", userID)),
	}
}

func (c *Client) ID() string    { return c.id }
func (c *Client) UserID() int64 { return c.userID }

// Send enqueues payload for delivery. A slow client whose buffer is full is
// disconnected so it can reconnect and re-fetch.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		go c.closeWith(websocket.CloseTryAgainLater, "send buffer full")
		return ErrSendBufferFull
	}
}

// Close terminates the connection
func (c *Client) Close() {
	c.closeWith(websocket.CloseGoingAway, "server shutdown")
}

func (c *Client) closeWith(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.conn.Close()
	})
}

// Done is closed once the connection is closed
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Serve runs the write pump in the background and the read pump on the
// calling goroutine. It returns when the connection is closed.
func (c *Client) Serve(ctx context.Context, dispatcher Dispatcher) {
	go c.writePump()
	c.readPump(ctx, dispatcher)
}

func (c *Client) readPump(ctx context.Context, dispatcher Dispatcher) {
	defer c.closeWith(websocket.CloseNormalClosure, "")

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		// Frames are handled in arrival order so acks match requests.
		dispatcher.Dispatch(ctx, c, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.closeWith(websocket.CloseGoingAway, "write failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseGoingAway, "write failed")
				return
			}
		}
	}
}
