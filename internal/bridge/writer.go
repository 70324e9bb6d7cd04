package bridge

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/camrelay/internal/protocol"
	"github.com/1ureka/camrelay/internal/transport"
	"github.com/1ureka/camrelay/internal/util"
)

var _ protocol.Sink = (*writer)(nil)

// writer gates every write on the channel being open. Writes to a channel
// in any other state are dropped without error.
type writer struct {
	dc transport.DataChannel
}

func (w *writer) open() bool {
	return w.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (w *writer) Send(data []byte) error {
	if !w.open() {
		return nil
	}
	if err := w.dc.Send(data); err != nil {
		return err
	}
	util.Stats.AddSent(len(data))
	return nil
}

func (w *writer) SendText(text string) error {
	if !w.open() {
		return nil
	}
	if err := w.dc.SendText(text); err != nil {
		return err
	}
	util.Stats.AddSent(len(text))
	return nil
}
