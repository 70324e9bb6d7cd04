// Package transport builds WebRTC PeerConnections and defines the
// PeerConnection/DataChannel capabilities the rest of the relay consumes.
package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/camrelay/internal/util"
)

// DefaultICEServers are the public STUN servers used for candidate
// gathering. No TURN: the browser and the device are expected to reach each
// other directly once signaling completes.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
	{URLs: []string{"stun:stun.relay.metered.ca:80"}},
}

// DefaultCandidatePoolSize pre-gathers candidates before the offer is made.
const DefaultCandidatePoolSize = 10

// Factory creates PeerConnections that share one webrtc.API and one fixed
// configuration.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewFactory creates a Factory whose pion internals log through the pterm
// logger. An empty iceServers selects DefaultICEServers.
func NewFactory(iceServers []webrtc.ICEServer) *Factory {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}
	se := webrtc.SettingEngine{LoggerFactory: util.PionLoggerFactory{}}
	return NewFactoryWithAPI(webrtc.NewAPI(webrtc.WithSettingEngine(se)), iceServers)
}

// NewFactoryWithAPI creates a Factory on top of a caller-built API, using
// iceServers as given.
func NewFactoryWithAPI(api *webrtc.API, iceServers []webrtc.ICEServer) *Factory {
	return &Factory{
		api: api,
		config: webrtc.Configuration{
			ICEServers:           iceServers,
			ICECandidatePoolSize: DefaultCandidatePoolSize,
		},
	}
}

// NewPeerConnection creates a new PeerConnection with the factory's
// configuration.
func (f *Factory) NewPeerConnection() (PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, err
	}
	return Wrap(pc), nil
}
