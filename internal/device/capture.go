package device

import (
	"context"
	"fmt"
	"io"
)

// Default capture parameters used by the continuous capture stream.
const (
	DefaultShrink   = 0.3
	DefaultExposure = 300
)

// CaptureResult is the outcome of a single frame capture. Image is set
// exactly when OK is true; Err carries the device's explanation otherwise
// (and may be empty when the device gave none).
type CaptureResult struct {
	Image []byte
	OK    bool
	Err   string
}

// Capture requests one frame from /capture with the given shrink factor and
// exposure.
func (c *Client) Capture(ctx context.Context, shrink float64, exposure int) CaptureResult {
	path := fmt.Sprintf("/capture?shrink=%g&exposure=%d", shrink, exposure)

	resp, err := c.get(ctx, path)
	if err != nil {
		return CaptureResult{Err: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CaptureResult{Err: err.Error()}
	}

	switch classify(resp.Header.Get("Content-Type")) {
	case KindImage:
		return CaptureResult{Image: body, OK: true}
	case KindText:
		return CaptureResult{Err: string(body)}
	default:
		return CaptureResult{}
	}
}
