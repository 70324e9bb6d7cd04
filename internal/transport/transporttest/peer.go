package transporttest

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/camrelay/internal/transport"
)

var _ transport.PeerConnection = (*Peer)(nil)

// FakeOfferSDP is the SDP body every fake offer carries.
const FakeOfferSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

var (
	errNoRemoteDescription = errors.New("transporttest: remote description not set")
	errEmptyCandidate      = errors.New("transporttest: empty candidate")
	errNotAnswer           = errors.New("transporttest: remote description is not an answer")
)

// Peer is a fake PeerConnection that records every negotiation call.
type Peer struct {
	mu         sync.Mutex
	state      webrtc.PeerConnectionState
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	channels   map[string]*Channel
	closed     bool

	onICE   func(*webrtc.ICECandidate)
	onState func(webrtc.PeerConnectionState)

	// OfferErr, when set, is returned by CreateOffer.
	OfferErr error
}

// NewPeer creates a fake peer in the new state.
func NewPeer() *Peer {
	return &Peer{
		state:    webrtc.PeerConnectionStateNew,
		channels: make(map[string]*Channel),
	}
}

func (p *Peer) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OfferErr != nil {
		return webrtc.SessionDescription{}, p.OfferErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: FakeOfferSDP}, nil
}

func (p *Peer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &desc
	return nil
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if desc.Type != webrtc.SDPTypeAnswer {
		return errNotAnswer
	}
	p.remote = &desc
	return nil
}

func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errNoRemoteDescription
	}
	if candidate.Candidate == "" {
		return errEmptyCandidate
	}
	p.candidates = append(p.candidates, candidate)
	return nil
}

func (p *Peer) CreateDataChannel(label string, _ *webrtc.DataChannelInit) (transport.DataChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := NewChannel(label)
	p.channels[label] = ch
	return ch, nil
}

func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close marks the peer closed and reports the closed state, like pion does.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.SetState(webrtc.PeerConnectionStateClosed)
	return nil
}

// SetState changes the connection state and fires the state handler.
func (p *Peer) SetState(state webrtc.PeerConnectionState) {
	p.mu.Lock()
	p.state = state
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// EmitCandidate fires the ICE candidate handler as if pion had gathered c.
func (p *Peer) EmitCandidate(c *webrtc.ICECandidate) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// Channel returns the channel created with label, or nil.
func (p *Peer) Channel(label string) *Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[label]
}

// LocalDescription returns the last local description set.
func (p *Peer) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

// RemoteDescription returns the last remote description set.
func (p *Peer) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

// Candidates returns the remote candidates added so far.
func (p *Peer) Candidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

// Closed reports whether Close was called.
func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Factory hands out fake peers and remembers them in creation order.
type Factory struct {
	mu    sync.Mutex
	peers []*Peer

	// Err, when set, makes NewPeerConnection fail.
	Err error
}

func (f *Factory) NewPeerConnection() (transport.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p := NewPeer()
	f.peers = append(f.peers, p)
	return p, nil
}

// Peers returns every peer created so far.
func (f *Factory) Peers() []*Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Peer(nil), f.peers...)
}
