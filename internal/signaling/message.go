// Package signaling connects the relay to the signaling hub. It carries a
// small client for the SignalR JSON hub protocol and the Adapter that maps
// hub events onto session operations.
package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordSeparator terminates every hub protocol frame.
const recordSeparator = 0x1e

type messageType int

const (
	typeInvocation       messageType = 1
	typeStreamItem       messageType = 2
	typeCompletion       messageType = 3
	typeStreamInvocation messageType = 4
	typeCancelInvocation messageType = 5
	typePing             messageType = 6
	typeClose            messageType = 7
)

// message is any frame received from the hub. Only the fields of the types
// the client handles are decoded.
type message struct {
	Type           messageType       `json:"type"`
	InvocationID   string            `json:"invocationId,omitempty"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

// invocation is an outgoing call. The hub rejects invocations without an
// arguments array, so Arguments is never omitted.
type invocation struct {
	Type         messageType `json:"type"`
	InvocationID string      `json:"invocationId,omitempty"`
	Target       string      `json:"target"`
	Arguments    []any       `json:"arguments"`
}

type ping struct {
	Type messageType `json:"type"`
}

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// encodeFrame serializes v and appends the record separator.
func encodeFrame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return append(data, recordSeparator), nil
}

// splitFrames returns the frames of one WebSocket message. A message may
// carry several frames; empty segments are skipped.
func splitFrames(data []byte) [][]byte {
	var frames [][]byte
	for _, f := range bytes.Split(data, []byte{recordSeparator}) {
		if len(bytes.TrimSpace(f)) > 0 {
			frames = append(frames, f)
		}
	}
	return frames
}

func newInvocation(id, target string, args []any) invocation {
	if args == nil {
		args = []any{}
	}
	return invocation{Type: typeInvocation, InvocationID: id, Target: target, Arguments: args}
}

// stringArg decodes the i-th argument as a string.
func stringArg(args []json.RawMessage, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return "", fmt.Errorf("argument %d: %w", i, err)
	}
	return s, nil
}
