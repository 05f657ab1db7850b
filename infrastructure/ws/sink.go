package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"devicesync/domain/event"
	"devicesync/observability"
)

// connState models the per-connection lifecycle. Disconnected is terminal.
type connState int32

const (
	stateConnecting connState = iota
	stateAuthenticated
	stateActive
	stateDisconnected
)

// Conn is one live websocket connection. It doubles as the room EventSink:
// fanned-out events are converted to wire messages and pushed through the
// bounded send channel drained by the write pump. A slow client loses
// events rather than stalling the room.
type Conn struct {
	id      string
	userID  string
	log     *slog.Logger
	sock    *websocket.Conn
	send    chan serverMessage
	metrics *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	writeTimeout time.Duration

	mu       sync.Mutex
	deviceID string
	state    connState
}

func newConn(parent context.Context, log *slog.Logger, sock *websocket.Conn,
	id string, bufferSize int, writeTimeout time.Duration, metrics *observability.Metrics) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		id:           id,
		log:          log,
		sock:         sock,
		send:         make(chan serverMessage, bufferSize),
		metrics:      metrics,
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: writeTimeout,
	}
}

// Consume implements contract.EventSink. Delivery is non-blocking: when
// the send buffer is full the event is dropped and counted.
func (c *Conn) Consume(ctx context.Context, e event.DomainEvent) error {
	msg := toServerMessage(e)
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	default:
		c.metrics.IncrSlowClientDrops()
		c.log.Debug("dropping event for slow client", "connection_id", c.id, "event_type", msg.Type)
		return nil
	}
}

// enqueue pushes a direct reply to this connection, same policy as Consume.
func (c *Conn) enqueue(msg serverMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	default:
		c.metrics.IncrSlowClientDrops()
		c.log.Debug("dropping reply for slow client", "connection_id", c.id, "event_type", msg.Type)
	}
}

// enqueueWait pushes a message and blocks until the write pump takes it
// or the connection ends. Used for backlog replay: those messages left
// the offline queue already, dropping them here would lose them for
// good.
func (c *Conn) enqueueWait(msg serverMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

// writePump drains the send channel onto the socket until the connection
// context ends or a write fails.
func (c *Conn) writePump() {
	defer func() { _ = c.sock.Close(websocket.StatusNormalClosure, "") }()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(msg); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// write marshals and sends one message with a bounded write deadline.
func (c *Conn) write(msg serverMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal server message", "error", err)
		return nil
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	return c.sock.Write(ctx, websocket.MessageText, data)
}

// writeNow sends one message synchronously, bypassing the pump. Used for
// the pre-close authentication failure notice.
func (c *Conn) writeNow(parent context.Context, msg serverMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, c.writeTimeout)
	defer cancel()
	return c.sock.Write(ctx, websocket.MessageText, data)
}

func (c *Conn) setState(s connState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Conn) State() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) bindDevice(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = deviceID
}

// DeviceID returns the device bound to this connection, if any.
func (c *Conn) DeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}
