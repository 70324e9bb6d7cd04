package bridge

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1ureka/camrelay/internal/device"
	"github.com/1ureka/camrelay/internal/transport/transporttest"
)

// flakyCapturer fails every other capture.
type flakyCapturer struct {
	frame  []byte
	calls  atomic.Int64
	shrink atomic.Value
}

func (c *flakyCapturer) Capture(_ context.Context, shrink float64, _ int) device.CaptureResult {
	c.shrink.Store(shrink)
	if c.calls.Add(1)%2 == 0 {
		return device.CaptureResult{Err: "sensor busy"}
	}
	return device.CaptureResult{Image: c.frame, OK: true}
}

func TestStreamPushesFramesWhileOpen(t *testing.T) {
	capt := &flakyCapturer{frame: []byte("jpeg")}
	peer := transporttest.NewPeer()

	err := AttachStream(t.Context(), "s", peer, StreamOptions{
		Capturer: capt,
		Shrink:   0.5,
		Exposure: 100,
		Interval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("AttachStream: %v", err)
	}

	ch := peer.Channel(StreamChannelLabel)
	if ch == nil {
		t.Fatalf("channel %q was not created", StreamChannelLabel)
	}

	time.Sleep(30 * time.Millisecond)
	if capt.calls.Load() != 0 {
		t.Fatal("captured before the channel opened")
	}

	ch.Open()
	sent := ch.WaitSent(3, waitTimeout)
	if len(sent) < 3 {
		t.Fatalf("sent %d frames, want at least 3", len(sent))
	}
	for i, m := range sent {
		if m.Text || !bytes.Equal(m.Data, capt.frame) {
			t.Fatalf("frame %d = %+v, want binary jpeg", i, m)
		}
	}
	if got := capt.shrink.Load(); got != 0.5 {
		t.Fatalf("shrink = %v, want 0.5", got)
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	capt := &flakyCapturer{frame: []byte("jpeg")}
	peer := transporttest.NewPeer()
	ctx, cancel := context.WithCancel(context.Background())

	if err := AttachStream(ctx, "s", peer, StreamOptions{Capturer: capt, Interval: 5 * time.Millisecond}); err != nil {
		t.Fatalf("AttachStream: %v", err)
	}
	peer.Channel(StreamChannelLabel).Open()
	peer.Channel(StreamChannelLabel).WaitSent(1, waitTimeout)

	cancel()
	time.Sleep(20 * time.Millisecond)
	before := capt.calls.Load()
	time.Sleep(40 * time.Millisecond)
	if after := capt.calls.Load(); after != before {
		t.Fatalf("captures continued after cancel: %d → %d", before, after)
	}
}

func TestServiceAttachesStreamOnlyWhenEnabled(t *testing.T) {
	tests := []struct {
		name   string
		stream *StreamOptions
		want   bool
	}{
		{"disabled", nil, false},
		{"enabled", &StreamOptions{Capturer: &flakyCapturer{}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peer := transporttest.NewPeer()
			svc := NewService(&stubExecutor{}, tt.stream)
			if err := svc.Attach(t.Context(), "s", peer); err != nil {
				t.Fatalf("Attach: %v", err)
			}
			if peer.Channel(APIChannelLabel) == nil {
				t.Fatal("API channel missing")
			}
			if got := peer.Channel(StreamChannelLabel) != nil; got != tt.want {
				t.Fatalf("stream channel present = %t, want %t", got, tt.want)
			}
		})
	}
}
