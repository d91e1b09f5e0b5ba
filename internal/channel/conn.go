package channel

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pagehost/renderer/internal/logging"
	"github.com/pagehost/renderer/internal/monitoring"
	"github.com/pagehost/renderer/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CommandHandler consumes decoded controller commands. Handlers must not
// block: dispatching onto the page run loop is the expected shape.
type CommandHandler interface {
	HandleCommand(cmd Command)
}

// Conn is one controller connection over a websocket. It implements
// Sender for the outbound direction and pumps inbound commands into a
// CommandHandler.
type Conn struct {
	id      id.ConnectionID
	ws      *websocket.Conn
	writeMu sync.Mutex

	limiter *rate.Limiter
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// ConnOptions configure a connection.
type ConnOptions struct {
	// Limiter bounds inbound commands; nil disables limiting.
	Limiter *rate.Limiter

	Metrics *monitoring.Metrics
	Logger  *logging.Logger
}

// NewConn wraps an upgraded websocket.
func NewConn(ws *websocket.Conn, opts ConnOptions) *Conn {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}
	connID := id.NewConnectionID()
	return &Conn{
		id:      connID,
		ws:      ws,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		log:     log.Named("channel").With(zap.String("conn_id", connID.String())),
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() id.ConnectionID { return c.id }

// Send implements Sender. Events are fire-and-forget; a write failure is
// logged and the read loop will observe the closed socket.
func (c *Conn) Send(event Event) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteJSON(event); err != nil {
		c.log.Warn("event write failed",
			zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	if c.metrics != nil {
		c.metrics.EventsSent.WithLabelValues(string(event.Type)).Inc()
	}
}

// Pump reads commands until the connection closes, forwarding each to the
// handler. Rate-limited commands are dropped, not queued: the controller
// is misbehaving and backpressure on an IPC channel would stall the page.
func (c *Conn) Pump(handler CommandHandler) error {
	for {
		var cmd Command
		if err := c.ws.ReadJSON(&cmd); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		if c.limiter != nil && !c.limiter.Allow() {
			if c.metrics != nil {
				c.metrics.CommandsDropped.Inc()
			}
			c.log.Warn("command dropped by rate limit", zap.String("type", string(cmd.Type)))
			continue
		}

		if c.metrics != nil {
			c.metrics.CommandsTotal.WithLabelValues(string(cmd.Type)).Inc()
		}
		handler.HandleCommand(cmd)
	}
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	err := c.ws.Close()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}
