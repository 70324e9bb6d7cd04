// Package device talks to the camera's local HTTP API: it executes relayed
// requests, captures frames and discovers the device identifier.
package device

import "strings"

// Kind classifies a device API response by its content type. It is decided
// once by the Client so callers can switch over a closed set.
type Kind int

const (
	KindUnknown     Kind = iota // content type matched none of the below
	KindText                    // text/*
	KindJSON                    // application/json and +json variants
	KindImage                   // image/*
	KindOctetStream             // application/octet-stream
	KindFailed                  // no response at all (network error, timeout)
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindJSON:
		return "json"
	case KindImage:
		return "image"
	case KindOctetStream:
		return "octet-stream"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsBinary reports whether the response body is carried as raw bytes.
func (k Kind) IsBinary() bool {
	return k == KindImage || k == KindOctetStream
}

// IsText reports whether the response body is carried as a string.
func (k Kind) IsText() bool {
	return k == KindText || k == KindJSON
}

// classify maps a content-type header onto a Kind. Matching is by substring
// in a fixed priority order, so "text/json" is text and
// "application/problem+json" is JSON.
func classify(contentType string) Kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "text"):
		return KindText
	case strings.Contains(ct, "json"):
		return KindJSON
	case strings.Contains(ct, "image"):
		return KindImage
	case strings.Contains(ct, "octet-stream"):
		return KindOctetStream
	default:
		return KindUnknown
	}
}

// Response is the normalized result of a relayed request.
type Response struct {
	Kind   Kind
	OK     bool   // HTTP status was 2xx
	Status int    // HTTP status code, 0 when Kind is KindFailed
	Text   string // body for KindText and KindJSON
	Body   []byte // body for KindImage and KindOctetStream
}

// failed is the uniform negative response for requests that never produced
// an HTTP response.
func failed() Response {
	return Response{Kind: KindFailed}
}
