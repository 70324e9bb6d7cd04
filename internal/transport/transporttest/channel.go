// Package transporttest provides in-memory PeerConnection and DataChannel
// implementations for exercising the relay without a network stack.
package transporttest

import (
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/camrelay/internal/transport"
)

var _ transport.DataChannel = (*Channel)(nil)

// Message is one message written to a Channel.
type Message struct {
	Text bool
	Data []byte
}

// String returns the payload as a string.
func (m Message) String() string { return string(m.Data) }

// Channel is a fake DataChannel. It starts in the connecting state; tests
// drive it with Open, Deliver and Hangup.
type Channel struct {
	label string

	mu        sync.Mutex
	state     webrtc.DataChannelState
	threshold uint64
	buffered  uint64
	sent      []Message
	notify    chan struct{}

	onMessage func(webrtc.DataChannelMessage)
	onOpen    func()
	onClose   func()
	onError   func(error)
	onLow     func()
}

// NewChannel creates a connecting channel with the given label.
func NewChannel(label string) *Channel {
	return &Channel{
		label:  label,
		state:  webrtc.DataChannelStateConnecting,
		notify: make(chan struct{}, 1),
	}
}

func (c *Channel) Label() string { return c.label }

func (c *Channel) ReadyState() webrtc.DataChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Send(data []byte) error {
	return c.write(Message{Data: append([]byte(nil), data...)})
}

func (c *Channel) SendText(text string) error {
	return c.write(Message{Text: true, Data: []byte(text)})
}

func (c *Channel) write(m Message) error {
	c.mu.Lock()
	if c.state != webrtc.DataChannelStateOpen {
		c.mu.Unlock()
		return io.ErrClosedPipe
	}
	c.sent = append(c.sent, m)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *Channel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

func (c *Channel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.mu.Lock()
	c.threshold = threshold
	c.mu.Unlock()
}

// BufferedAmountLowThreshold returns the last threshold set.
func (c *Channel) BufferedAmountLowThreshold() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

func (c *Channel) OnBufferedAmountLow(fn func()) {
	c.mu.Lock()
	c.onLow = fn
	c.mu.Unlock()
}

func (c *Channel) OnOpen(fn func()) {
	c.mu.Lock()
	c.onOpen = fn
	c.mu.Unlock()
}

func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *Channel) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *Channel) OnMessage(fn func(webrtc.DataChannelMessage)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// Close closes the channel locally.
func (c *Channel) Close() error {
	c.Hangup()
	return nil
}

// Open moves the channel to the open state and fires OnOpen.
func (c *Channel) Open() {
	c.mu.Lock()
	c.state = webrtc.DataChannelStateOpen
	fn := c.onOpen
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Hangup moves the channel to the closed state and fires OnClose once.
func (c *Channel) Hangup() {
	c.mu.Lock()
	if c.state == webrtc.DataChannelStateClosed {
		c.mu.Unlock()
		return
	}
	c.state = webrtc.DataChannelStateClosed
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Fail fires OnError without changing state.
func (c *Channel) Fail(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Drain simulates the send buffer draining and fires OnBufferedAmountLow.
func (c *Channel) Drain() {
	c.mu.Lock()
	c.buffered = 0
	fn := c.onLow
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Deliver hands a text message to the registered OnMessage handler, as if
// the remote peer had sent it.
func (c *Channel) Deliver(text string) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn(webrtc.DataChannelMessage{IsString: true, Data: []byte(text)})
	}
}

// Sent returns a copy of every message written so far.
func (c *Channel) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

// WaitSent blocks until at least n messages were written or the timeout
// expires, and returns what was written.
func (c *Channel) WaitSent(n int, timeout time.Duration) []Message {
	deadline := time.After(timeout)
	for {
		if sent := c.Sent(); len(sent) >= n {
			return sent
		}
		select {
		case <-c.notify:
		case <-deadline:
			return c.Sent()
		}
	}
}
