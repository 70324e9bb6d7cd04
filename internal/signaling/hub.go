package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/camrelay/internal/util"
)

// KeepAliveInterval is how often the client pings the hub.
const KeepAliveInterval = 15 * time.Second

var (
	// ErrNotConnected is returned when sending while no connection is up.
	ErrNotConnected = errors.New("hub not connected")
	// ErrConnectionLost fails invocations pending on a dropped connection.
	ErrConnectionLost = errors.New("hub connection lost")
	// ErrClosedByServer ends Run when the hub refuses reconnection.
	ErrClosedByServer = errors.New("hub closed the connection")
)

// HubError is an error reported by the hub in a completion.
type HubError struct {
	Target  string
	Message string
}

func (e *HubError) Error() string {
	return fmt.Sprintf("hub invocation %s failed: %s", e.Target, e.Message)
}

// Handler receives the raw arguments of a hub invocation.
type Handler func(args []json.RawMessage)

type completion struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	target string
	done   chan completion
}

// Hub is a SignalR JSON-protocol client over gorilla/websocket.
//
// Handlers are held client-side and survive reconnects. They run on the
// read loop in arrival order, so a handler must not block on Invoke.
type Hub struct {
	url    string
	dialer *websocket.Dialer

	handlersMu  sync.RWMutex
	handlers    map[string]Handler
	reconnected []func()

	mu      sync.Mutex
	conn    *connection
	pending map[string]pendingCall

	closed atomic.Bool

	// newBackOff builds the reconnect schedule; replaced in tests.
	newBackOff func() backoff.BackOff
}

// NewHub creates a client for the hub at url (ws:// or wss://). A nil
// dialer selects websocket.DefaultDialer.
func NewHub(url string, dialer *websocket.Dialer) *Hub {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Hub{
		url:        url,
		dialer:     dialer,
		handlers:   make(map[string]Handler),
		pending:    make(map[string]pendingCall),
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Connect opens the first connection. Run must be called afterwards to
// serve it.
func (h *Hub) Connect(ctx context.Context) error {
	c, err := dial(ctx, h.dialer, h.url)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.conn = c
	h.mu.Unlock()
	return nil
}

// On registers fn for invocations of target, replacing any previous
// handler. Targets match case-insensitively.
func (h *Hub) On(target string, fn Handler) {
	h.handlersMu.Lock()
	h.handlers[strings.ToLower(target)] = fn
	h.handlersMu.Unlock()
}

// Off removes the handler for target.
func (h *Hub) Off(target string) {
	h.handlersMu.Lock()
	delete(h.handlers, strings.ToLower(target))
	h.handlersMu.Unlock()
}

// OnReconnected registers fn to run after every successful reconnect.
func (h *Hub) OnReconnected(fn func()) {
	h.handlersMu.Lock()
	h.reconnected = append(h.reconnected, fn)
	h.handlersMu.Unlock()
}

// Send invokes target on the hub without waiting for a result.
func (h *Hub) Send(target string, args ...any) error {
	c := h.current()
	if c == nil {
		return ErrNotConnected
	}
	return c.write(newInvocation("", target, args))
}

// Invoke invokes target on the hub and waits for its completion.
func (h *Hub) Invoke(ctx context.Context, target string, args ...any) (json.RawMessage, error) {
	id := uuid.NewString()
	done := make(chan completion, 1)

	h.mu.Lock()
	c := h.conn
	if c == nil {
		h.mu.Unlock()
		return nil, ErrNotConnected
	}
	h.pending[id] = pendingCall{target: target, done: done}
	h.mu.Unlock()

	if err := c.write(newInvocation(id, target, args)); err != nil {
		h.forget(id)
		return nil, fmt.Errorf("invoke %s: %w", target, err)
	}

	select {
	case res := <-done:
		return res.result, res.err
	case <-ctx.Done():
		h.forget(id)
		return nil, ctx.Err()
	}
}

// Run serves the connection opened by Connect and reconnects whenever it
// drops. It returns when ctx is done, after Close, or when the hub refuses
// reconnection.
func (h *Hub) Run(ctx context.Context) error {
	for {
		c := h.current()
		if c == nil {
			return ErrNotConnected
		}

		err := h.serve(ctx, c)
		h.drop(c, err)

		if h.closed.Load() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrClosedByServer) {
			return err
		}

		util.LogWarning("hub connection lost: %v", err)
		if err := h.reconnect(ctx); err != nil {
			return err
		}
		if h.closed.Load() {
			return nil
		}
		util.LogSuccess("reconnected to hub")

		h.handlersMu.RLock()
		hooks := append([]func(){}, h.reconnected...)
		h.handlersMu.RUnlock()
		for _, fn := range hooks {
			fn()
		}
	}
}

// Close closes the current connection and stops Run.
func (h *Hub) Close() error {
	h.closed.Store(true)
	c := h.current()
	if c == nil {
		return nil
	}
	return c.close()
}

func (h *Hub) current() *connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn
}

func (h *Hub) reconnect(ctx context.Context) error {
	b := backoff.WithContext(h.newBackOff(), ctx)

	var c *connection
	err := backoff.RetryNotify(func() error {
		if h.closed.Load() {
			return nil
		}
		var err error
		c, err = dial(ctx, h.dialer, h.url)
		return err
	}, b, func(err error, next time.Duration) {
		util.LogWarning("hub reconnect failed, retrying in %s: %v", next.Round(time.Millisecond), err)
	})
	if err != nil {
		return fmt.Errorf("hub reconnect: %w", err)
	}
	if c == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		c.close()
		return nil
	}
	h.conn = c
	return nil
}

// serve runs the read loop of c until it fails.
func (h *Hub) serve(ctx context.Context, c *connection) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-stop:
		}
	}()
	go h.keepAlive(c, stop)

	for _, frame := range c.backlog {
		if err := h.dispatch(frame); err != nil {
			return err
		}
	}
	c.backlog = nil

	for {
		frames, err := c.read()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		for _, frame := range frames {
			if err := h.dispatch(frame); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) keepAlive(c *connection, stop <-chan struct{}) {
	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.write(ping{Type: typePing}); err != nil {
				util.LogDebug("hub ping failed: %v", err)
				return
			}
		case <-stop:
			return
		}
	}
}

// dispatch handles one frame. It only returns an error when the hub closed
// the connection.
func (h *Hub) dispatch(frame []byte) error {
	var msg message
	if err := json.Unmarshal(frame, &msg); err != nil {
		util.LogWarning("malformed hub frame: %v", err)
		return nil
	}

	switch msg.Type {
	case typeInvocation:
		h.handlersMu.RLock()
		fn := h.handlers[strings.ToLower(msg.Target)]
		h.handlersMu.RUnlock()
		if fn == nil {
			util.LogDebug("no handler for hub method %s", msg.Target)
			return nil
		}
		fn(msg.Arguments)

	case typeCompletion:
		h.complete(msg)

	case typePing:

	case typeClose:
		if !msg.AllowReconnect {
			return fmt.Errorf("%w: %s", ErrClosedByServer, msg.Error)
		}
		return fmt.Errorf("hub requested reconnect: %s", msg.Error)

	default:
		util.LogDebug("ignoring hub message type %d", msg.Type)
	}
	return nil
}

func (h *Hub) complete(msg message) {
	h.mu.Lock()
	call, ok := h.pending[msg.InvocationID]
	delete(h.pending, msg.InvocationID)
	h.mu.Unlock()

	if !ok {
		util.LogDebug("completion for unknown invocation %s", msg.InvocationID)
		return
	}

	if msg.Error != "" {
		call.done <- completion{err: &HubError{Target: call.target, Message: msg.Error}}
		return
	}
	call.done <- completion{result: msg.Result}
}

func (h *Hub) forget(id string) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

// drop clears c and fails every invocation still waiting on it.
func (h *Hub) drop(c *connection, cause error) {
	h.mu.Lock()
	if h.conn == c {
		h.conn = nil
	}
	pending := h.pending
	h.pending = make(map[string]pendingCall)
	h.mu.Unlock()

	c.ws.Close()
	for _, call := range pending {
		call.done <- completion{err: fmt.Errorf("%w: %v", ErrConnectionLost, cause)}
	}
}
