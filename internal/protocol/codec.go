package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyPath is returned by DecodeRequest when the request names no path.
var ErrEmptyPath = errors.New("relay request has no path")

// DecodeRequest parses an inbound DataChannel message into a Request.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed relay request: %w", err)
	}
	if req.Path == "" {
		return nil, ErrEmptyPath
	}
	return &req, nil
}

// EncodeText serializes a {ok, text} envelope.
func EncodeText(ok bool, text string) string {
	data, _ := json.Marshal(TextEnvelope{OK: ok, Text: text})
	return string(data)
}

// EncodeFailure serializes the {ok:false} envelope.
func EncodeFailure() string {
	data, _ := json.Marshal(failureEnvelope{OK: false})
	return string(data)
}
