package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openmeet/signal-relay/internal/metrics"
	"github.com/openmeet/signal-relay/internal/room"
)

const (
	clientWriteWait = 1 * time.Second
	clientSendQueue = 64
)

// client owns the write side of one WebSocket connection. All outbound
// frames go through the send queue so that broadcasts from other
// connections' handlers never block on a slow socket.
type client struct {
	id   room.ConnID
	conn *websocket.Conn

	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	pingInterval time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

func newClient(id room.ConnID, conn *websocket.Conn, pingInterval time.Duration, logger *slog.Logger, m *metrics.Metrics) *client {
	return &client{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, clientSendQueue),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		logger:       logger,
		metrics:      m,
	}
}

// enqueue queues a frame for delivery. A client whose queue is full is
// dropped rather than allowed to stall everyone else's handlers.
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.metrics.Inc(metrics.DropReasonSlowConsumer)
		c.logger.Warn("dropping slow signaling consumer", slog.String("connId", string(c.id)))
		c.close()
	}
}

// close tears the connection down. Safe to call from any goroutine, any
// number of times.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with periodic pings. It exits when the client is closed.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
