package transport

import (
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the subset of a WebRTC peer connection the relay needs.
// Production code uses pion through NewFactory; tests inject fakes.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	CreateDataChannel(label string, options *webrtc.DataChannelInit) (DataChannel, error)

	// OnICECandidate registers the handler for locally gathered candidates.
	// A nil candidate signals the end of gathering.
	OnICECandidate(fn func(*webrtc.ICECandidate))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	ConnectionState() webrtc.PeerConnectionState

	Close() error
}

// DataChannel is the subset of a WebRTC data channel the relay needs.
// *webrtc.DataChannel satisfies it as-is.
type DataChannel interface {
	Label() string
	ReadyState() webrtc.DataChannelState

	Send(data []byte) error
	SendText(text string) error

	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(threshold uint64)
	OnBufferedAmountLow(fn func())

	OnOpen(fn func())
	OnClose(fn func())
	OnError(fn func(err error))
	OnMessage(fn func(msg webrtc.DataChannelMessage))

	Close() error
}

var (
	_ DataChannel    = (*webrtc.DataChannel)(nil)
	_ PeerConnection = (*pionPeer)(nil)
)

// pionPeer adapts *webrtc.PeerConnection to PeerConnection. Only
// CreateDataChannel needs translating; everything else is promoted.
type pionPeer struct {
	*webrtc.PeerConnection
}

func (p *pionPeer) CreateDataChannel(label string, options *webrtc.DataChannelInit) (DataChannel, error) {
	dc, err := p.PeerConnection.CreateDataChannel(label, options)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

// Wrap exposes an existing pion PeerConnection as a PeerConnection.
func Wrap(pc *webrtc.PeerConnection) PeerConnection {
	return &pionPeer{PeerConnection: pc}
}
