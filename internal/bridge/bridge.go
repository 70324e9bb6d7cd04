// Package bridge serves the device HTTP API over a WebRTC data channel.
//
// Every message received on the API channel is a relay request. Requests are
// processed one at a time in arrival order; each is executed against the
// device and the response is written back on the same channel, chunked when
// the client asked for it.
package bridge

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/camrelay/internal/device"
	"github.com/1ureka/camrelay/internal/protocol"
	"github.com/1ureka/camrelay/internal/transport"
	"github.com/1ureka/camrelay/internal/util"
)

const (
	// APIChannelLabel is the label of the relay request channel.
	APIChannelLabel = "cameraApiChannel"

	// BufferedAmountLowThreshold is the low-water mark set on the API
	// channel. Crossing it is only logged.
	BufferedAmountLowThreshold = 1000 * 1024

	queueSize = 32 // pending requests per channel before overflow replies
)

// Executor runs one relay request against the device API.
type Executor interface {
	Execute(ctx context.Context, path string) device.Response
}

// Bridge is the API channel of one session.
type Bridge struct {
	tag   uint32
	dc    transport.DataChannel
	out   *writer
	exec  Executor
	inbox chan []byte
	ctx   context.Context
}

// Attach creates the API data channel on pc and starts serving relay
// requests on it. The worker stops when ctx is cancelled.
func Attach(ctx context.Context, sessionID string, pc transport.PeerConnection, exec Executor) (*Bridge, error) {
	dc, err := pc.CreateDataChannel(APIChannelLabel, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", APIChannelLabel, err)
	}

	b := &Bridge{
		tag:   util.SessionTag(sessionID),
		dc:    dc,
		out:   &writer{dc: dc},
		exec:  exec,
		inbox: make(chan []byte, queueSize),
		ctx:   ctx,
	}

	dc.SetBufferedAmountLowThreshold(BufferedAmountLowThreshold)
	dc.OnBufferedAmountLow(func() {
		util.LogDebug("[%08x] %s buffered amount low (%d bytes)", b.tag, APIChannelLabel, dc.BufferedAmount())
	})
	dc.OnOpen(func() {
		util.LogInfo("[%08x] %s open", b.tag, APIChannelLabel)
	})
	dc.OnClose(func() {
		util.LogInfo("[%08x] %s closed", b.tag, APIChannelLabel)
	})
	dc.OnError(func(err error) {
		util.LogWarning("[%08x] %s error: %v", b.tag, APIChannelLabel, err)
	})
	dc.OnMessage(b.enqueue)

	go b.loop()

	return b, nil
}

// Channel returns the underlying data channel.
func (b *Bridge) Channel() transport.DataChannel {
	return b.dc
}

// enqueue hands a message to the worker. pion reuses the message buffer
// after the callback returns, so the payload is copied.
func (b *Bridge) enqueue(msg webrtc.DataChannelMessage) {
	data := append([]byte(nil), msg.Data...)

	select {
	case b.inbox <- data:
	case <-b.ctx.Done():
	default:
		util.LogWarning("[%08x] relay queue full, rejecting request", b.tag)
		util.Stats.AddRequest()
		b.fail()
	}
}

// loop is the single worker that serializes requests on this channel.
func (b *Bridge) loop() {
	for {
		select {
		case data := <-b.inbox:
			b.handle(data)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bridge) handle(data []byte) {
	util.Stats.AddRequest()

	req, err := protocol.DecodeRequest(data)
	if err != nil {
		util.LogWarning("[%08x] bad relay request: %v", b.tag, err)
		b.fail()
		return
	}

	resp := b.exec.Execute(b.ctx, req.Path)
	util.LogDebug("[%08x] relay %s → %s (ok=%t)", b.tag, req.Path, resp.Kind, resp.OK)

	switch resp.Kind {
	case device.KindText, device.KindJSON:
		err = b.out.SendText(protocol.EncodeText(resp.OK, resp.Text))
	case device.KindImage, device.KindOctetStream:
		if req.Chunk {
			util.LogDebug("[%08x] relay %s: %d bytes in %d chunks", b.tag, req.Path, len(resp.Body), protocol.ChunkCount(len(resp.Body)))
			err = protocol.SendChunked(b.out, resp.Body)
		} else {
			err = b.out.Send(resp.Body)
		}
	case device.KindUnknown, device.KindFailed:
		b.fail()
		return
	default:
		err = fmt.Errorf("unhandled response kind %s", resp.Kind)
	}

	if err != nil {
		util.LogWarning("[%08x] relay %s reply failed: %v", b.tag, req.Path, err)
		b.fail()
	}
}

// fail answers {"ok":false}; a closed channel drops it.
func (b *Bridge) fail() {
	util.Stats.AddFailure()
	if err := b.out.SendText(protocol.EncodeFailure()); err != nil {
		util.LogDebug("[%08x] failure reply dropped: %v", b.tag, err)
	}
}
