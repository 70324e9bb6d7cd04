package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/1ureka/camrelay/internal/device"
	"github.com/1ureka/camrelay/internal/transport"
	"github.com/1ureka/camrelay/internal/util"
)

const (
	// StreamChannelLabel is the label of the continuous capture channel.
	StreamChannelLabel = "piContinuousStream"

	// DefaultStreamInterval is the delay between two pushed frames.
	DefaultStreamInterval = 80 * time.Millisecond
)

// Capturer grabs single frames from the camera.
type Capturer interface {
	Capture(ctx context.Context, shrink float64, exposure int) device.CaptureResult
}

// StreamOptions configures the continuous capture channel.
type StreamOptions struct {
	Capturer Capturer
	Shrink   float64
	Exposure int
	Interval time.Duration // zero selects DefaultStreamInterval
}

// AttachStream creates the capture channel on pc and, while it is open,
// pushes one frame per interval as a binary message. Captures without an
// image are skipped. The ticker stops when ctx is cancelled.
func AttachStream(ctx context.Context, sessionID string, pc transport.PeerConnection, opts StreamOptions) error {
	dc, err := pc.CreateDataChannel(StreamChannelLabel, nil)
	if err != nil {
		return fmt.Errorf("create %s: %w", StreamChannelLabel, err)
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultStreamInterval
	}

	tag := util.SessionTag(sessionID)
	dc.OnOpen(func() {
		util.LogInfo("[%08x] %s open", tag, StreamChannelLabel)
	})
	dc.OnClose(func() {
		util.LogInfo("[%08x] %s closed", tag, StreamChannelLabel)
	})
	dc.OnError(func(err error) {
		util.LogWarning("[%08x] %s error: %v", tag, StreamChannelLabel, err)
	})

	go pushFrames(ctx, tag, &writer{dc: dc}, opts, interval)

	return nil
}

func pushFrames(ctx context.Context, tag uint32, out *writer, opts StreamOptions, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !out.open() {
				continue
			}

			frame := opts.Capturer.Capture(ctx, opts.Shrink, opts.Exposure)
			if !frame.OK {
				if frame.Err != "" {
					util.LogDebug("[%08x] capture skipped: %s", tag, frame.Err)
				}
				continue
			}

			if err := out.Send(frame.Image); err != nil {
				util.LogWarning("[%08x] capture frame dropped: %v", tag, err)
			}
		case <-ctx.Done():
			return
		}
	}
}
