// Package protocol defines the message format spoken on the camera API
// DataChannel and the chunked transfer used for large binary bodies.
package protocol

// Request is a relay request received on the API DataChannel. Path is
// forwarded verbatim to the device-local HTTP API.
type Request struct {
	Path  string `json:"path"`
	Chunk bool   `json:"chunk"` // fragment image/octet-stream bodies
}

// TextEnvelope answers text and JSON responses.
type TextEnvelope struct {
	OK   bool   `json:"ok"`
	Text string `json:"text"`
}

// failureEnvelope is the negative reply sent for any failed request.
type failureEnvelope struct {
	OK bool `json:"ok"`
}
