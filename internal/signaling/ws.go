package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second

	// serverTimeout drops a connection that has been silent this long. The
	// hub pings every 15 s, so two missed pings end the connection.
	serverTimeout = 30 * time.Second
)

var errHandshake = errors.New("hub handshake failed")

// HubURL joins the API base URL and the hub path and switches the scheme to
// its WebSocket counterpart.
func HubURL(apiURL, hubPath string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiURL, "/") + hubPath)
	if err != nil {
		return "", fmt.Errorf("invalid hub url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid hub url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// connection is one handshaken WebSocket to the hub.
type connection struct {
	ws      *websocket.Conn
	backlog [][]byte // frames that arrived together with the handshake reply

	writeMu sync.Mutex
}

// dial opens the WebSocket and performs the JSON protocol handshake.
func dial(ctx context.Context, dialer *websocket.Dialer, hubURL string) (*connection, error) {
	ws, _, err := dialer.DialContext(ctx, hubURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hub: %w", err)
	}

	c := &connection{ws: ws}
	if err := c.write(handshakeRequest{Protocol: "json", Version: 1}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %w", errHandshake, err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %w", errHandshake, err)
	}

	frames := splitFrames(data)
	if len(frames) == 0 {
		ws.Close()
		return nil, fmt.Errorf("%w: empty reply", errHandshake)
	}

	var resp handshakeResponse
	if err := json.Unmarshal(frames[0], &resp); err != nil {
		ws.Close()
		return nil, fmt.Errorf("%w: %w", errHandshake, err)
	}
	if resp.Error != "" {
		ws.Close()
		return nil, fmt.Errorf("%w: %s", errHandshake, resp.Error)
	}

	c.backlog = frames[1:]
	return c, nil
}

// write sends one frame, serialized against concurrent writers.
func (c *connection) write(v any) error {
	frame, err := encodeFrame(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// read returns the frames of the next WebSocket message.
func (c *connection) read() ([][]byte, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(serverTimeout))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return splitFrames(data), nil
}

func (c *connection) close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}
