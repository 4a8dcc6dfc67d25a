// Package wsconn implements the per-connection actor: a read pump, a write
// pump, and a broadcast fanout pump cooperatively owning one upgraded
// WebSocket, from the moment it's admitted until it closes.
package wsconn

import (
	"database/sql"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agilecore/boardsyncd/internal/broadcast"
	"github.com/agilecore/boardsyncd/internal/idempotency"
	"github.com/agilecore/boardsyncd/internal/logging"
	"github.com/agilecore/boardsyncd/internal/registry"
	"github.com/agilecore/boardsyncd/internal/subscription"
	"github.com/agilecore/boardsyncd/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 1 * 1024 * 1024
	sendBuffer     = 64
)

// State is the connection's coarse lifecycle stage.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// CloseReason is the short code carried on a server-initiated terminal
// close frame.
type CloseReason string

const (
	CloseAuthFailed    CloseReason = "auth_failed"
	CloseRateLimited   CloseReason = "rate_limited"
	CloseTenantLimit   CloseReason = "tenant_limit"
	CloseGlobalLimit   CloseReason = "global_limit"
	CloseShutdown      CloseReason = "shutdown"
	CloseProtocolError CloseReason = "protocol_error"
	CloseNormal        CloseReason = ""
)

// Deps are the shared, process-wide collaborators every Conn needs; one set
// is constructed at startup and handed to every accepted connection.
type Deps struct {
	Broadcaster        *broadcast.Broadcaster
	Idempotency        *idempotency.Store
	RequestTimeout     time.Duration
	HeartbeatInterval  time.Duration
	RateLimitWindow    time.Duration
	RateLimitMax       int
	RateLimitMaxViolations int
}

// Conn owns one upgraded socket for one authenticated user of one tenant.
type Conn struct {
	ID       string
	TenantID string
	UserID   string

	ws   *websocket.Conn
	db   *sql.DB
	deps Deps
	log  *zap.SugaredLogger

	guard    *registry.Guard
	filter   *subscription.Filter
	receiver *broadcast.Receiver
	gate     *violationGate

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
	state     State
	stateMu   sync.Mutex
}

// New wires up a Conn for one accepted, authenticated, admitted socket. The
// caller has already run AuthVerifier and ConnectionRegistry.TryRegister;
// guard is released exactly once, from Close.
func New(id, tenantID, userID string, ws *websocket.Conn, db *sql.DB, guard *registry.Guard, deps Deps) *Conn {
	c := &Conn{
		ID:       id,
		TenantID: tenantID,
		UserID:   userID,
		ws:       ws,
		db:       db,
		deps:     deps,
		log:      logging.ForConn(id, tenantID),
		guard:    guard,
		filter:   subscription.New(),
		gate:     newViolationGate(deps.RateLimitWindow, deps.RateLimitMax, deps.RateLimitMaxViolations),
		send:     make(chan []byte, sendBuffer),
		closed:   make(chan struct{}),
		state:    StateConnecting,
	}
	c.receiver = deps.Broadcaster.Subscribe(tenantID)
	return c
}

// Run starts the read pump, write pump, and broadcast fanout pump, and
// blocks until the connection closes (by any of: peer disconnect, protocol
// error, rate limit, or shutdown signal on stop).
func (c *Conn) Run(stop <-chan struct{}) {
	c.setState(StateOpen)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writePump() }()
	go func() { defer wg.Done(); c.fanoutPump() }()

	go func() {
		select {
		case <-stop:
			c.closeWithReason(CloseShutdown)
		case <-c.closed:
		}
	}()

	c.readPump()
	wg.Wait()
}

func (c *Conn) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// State returns the connection's current lifecycle stage.
func (c *Conn) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Close releases this connection's resources exactly once: its broadcaster
// receiver and its registry guard. Safe to call from any goroutine, any
// number of times.
func (c *Conn) Close() {
	c.closeWithReason(CloseNormal)
}

func (c *Conn) closeWithReason(reason CloseReason) {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		if reason != CloseNormal {
			c.writeCloseFrame(reason)
		}
		close(c.closed)
		c.receiver.Close()
		c.guard.Release()
		c.ws.Close()
		c.setState(StateClosed)
	})
}

func (c *Conn) writeCloseFrame(reason CloseReason) {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(reason))
	_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
}

// enqueue queues an encoded envelope for the write pump, dropping it rather
// than blocking if the connection is already shutting down.
func (c *Conn) enqueue(b []byte) {
	select {
	case c.send <- b:
	case <-c.closed:
	}
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debugw("read pump closing on error", "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			c.log.Warnw("rejecting non-binary frame")
			c.closeWithReason(CloseProtocolError)
			return
		}

		switch c.gate.Check() {
		case outcomeClose:
			c.log.Warnw("closing connection after repeated rate-limit violations")
			c.closeWithReason(CloseRateLimited)
			return
		case outcomeWarnAndDrop:
			c.sendRateLimitWarning()
			continue
		}

		env, err := wire.Decode(data)
		if err != nil {
			c.log.Warnw("dropping malformed envelope", "error", err)
			c.closeWithReason(CloseProtocolError)
			return
		}

		c.dispatch(env)
	}
}

func (c *Conn) sendRateLimitWarning() {
	env, err := wire.NewEnvelope("", wire.KindError, time.Now().UnixMilli(), wire.ErrorEvent{
		Code:    "RATE_LIMITED",
		Message: "message dropped: rate limit exceeded",
	})
	if err != nil {
		return
	}
	if encoded, err := wire.Encode(env); err == nil {
		c.enqueue(encoded)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.deps.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case b := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
				c.log.Debugw("write pump stopping on error", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// fanoutPump forwards this tenant's broadcasts to the socket, applying this
// connection's subscription filter, and turns a Lagged signal into a
// logged, non-fatal event rather than a crash.
func (c *Conn) fanoutPump() {
	for {
		select {
		case msg, ok := <-c.receiver.C:
			if !ok {
				return
			}
			if !c.filter.Allows(msg.ProjectID) {
				continue
			}
			c.enqueue(msg.EncodedPayload)
		case n, ok := <-c.receiver.Lagged:
			if !ok {
				continue
			}
			c.log.Warnw("fell behind on tenant broadcasts, some events were dropped", "dropped", n)
		case <-c.closed:
			return
		}
	}
}
