// Package session owns the table of live client sessions. Each session maps
// an externally generated id to one PeerConnection; the Manager creates it
// on a stream request, drives the offer side of the negotiation and tears it
// down when the connection closes or fails.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/camrelay/internal/transport"
	"github.com/1ureka/camrelay/internal/util"
)

// RoleServer tags candidates gathered on the device side.
const RoleServer = "server"

// OfferTimeout bounds delivery of one offer to the hub.
const OfferTimeout = 30 * time.Second

// Signaler carries the outbound half of the negotiation.
type Signaler interface {
	SendOffer(ctx context.Context, sessionID, sdp string) error
	SendICECandidate(ctx context.Context, sessionID, candidate, role string) error
}

// Attacher sets up the relay channels on a freshly created PeerConnection.
type Attacher interface {
	Attach(ctx context.Context, sessionID string, pc transport.PeerConnection) error
}

// PeerFactory creates PeerConnections with the relay's fixed configuration.
type PeerFactory interface {
	NewPeerConnection() (transport.PeerConnection, error)
}

// Manager is safe for concurrent use: signaling handlers, pion callbacks and
// offer goroutines all reach it.
type Manager struct {
	ctx      context.Context
	peers    PeerFactory
	signaler Signaler
	attacher Attacher

	offerTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	retired  *util.Retired
	onClosed []func(sessionID string)
}

// NewManager creates an empty Manager. Session contexts derive from ctx.
func NewManager(ctx context.Context, peers PeerFactory, signaler Signaler, attacher Attacher) *Manager {
	return &Manager{
		ctx:      ctx,
		peers:    peers,
		signaler: signaler,
		attacher: attacher,

		offerTimeout: OfferTimeout,

		sessions: make(map[string]*Session),
		retired:  util.NewRetired(util.DefaultRetiredLimit),
	}
}

// OnClosed registers fn to run after a session is torn down.
func (m *Manager) OnClosed(fn func(sessionID string)) {
	m.mu.Lock()
	m.onClosed = append(m.onClosed, fn)
	m.mu.Unlock()
}

// OnStreamRequested creates the session for sessionID and starts the offer.
// Repeated requests for a live or retired id are ignored.
func (m *Manager) OnStreamRequested(sessionID string) {
	tag := util.SessionTag(sessionID)

	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		util.LogDebug("[%08x] stream already requested, ignoring", tag)
		return
	}
	if m.retired.Has(sessionID) {
		m.mu.Unlock()
		util.LogWarning("[%08x] session already ended, ignoring stream request", tag)
		return
	}

	pc, err := m.peers.NewPeerConnection()
	if err != nil {
		m.mu.Unlock()
		util.LogError("[%08x] failed to create PeerConnection: %v", tag, err)
		return
	}

	s := newSession(m.ctx, sessionID, pc)
	m.sessions[sessionID] = s
	m.mu.Unlock()

	util.Stats.AddSession()
	util.LogInfo("[%08x] session created", tag)

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("[%08x] PeerConnection state: %s", tag, state)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			util.LogSuccess("[%08x] peer connected", tag)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			m.teardown(s)
		}
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			util.LogWarning("[%08x] failed to encode ICE candidate: %v", tag, err)
			return
		}
		if s.queueCandidate(string(data)) {
			m.sendCandidate(s, string(data))
		}
	})

	if err := m.attacher.Attach(s.ctx, sessionID, pc); err != nil {
		util.LogError("[%08x] failed to attach relay: %v", tag, err)
		m.teardown(s)
		return
	}

	go m.negotiate(s)
}

// negotiate creates the offer, applies it locally and forwards it, then
// flushes any candidates gathered in the meantime.
func (m *Manager) negotiate(s *Session) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		util.LogError("[%08x] failed to create offer: %v", s.tag, err)
		m.teardown(s)
		return
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		util.LogError("[%08x] failed to set local description: %v", s.tag, err)
		m.teardown(s)
		return
	}

	data, err := json.Marshal(offer)
	if err != nil {
		util.LogError("[%08x] failed to encode offer: %v", s.tag, err)
		m.teardown(s)
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, m.offerTimeout)
	err = m.signaler.SendOffer(ctx, s.id, string(data))
	cancel()
	if err != nil {
		util.LogError("[%08x] failed to send offer: %v", s.tag, err)
		m.teardown(s)
		return
	}
	util.LogDebug("[%08x] offer sent", s.tag)

	for _, c := range s.releaseCandidates() {
		m.sendCandidate(s, c)
	}
}

func (m *Manager) sendCandidate(s *Session, candidate string) {
	if err := m.signaler.SendICECandidate(s.ctx, s.id, candidate, RoleServer); err != nil {
		util.LogWarning("[%08x] failed to send ICE candidate: %v", s.tag, err)
	}
}

// OnAnswer applies the client's SDP answer. Unknown sessions are ignored.
func (m *Manager) OnAnswer(sessionID, payload string) {
	s, ok := m.lookup(sessionID)
	if !ok {
		util.LogDebug("[%08x] answer for unknown session", util.SessionTag(sessionID))
		return
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal([]byte(payload), &desc); err != nil {
		util.LogWarning("[%08x] malformed answer: %v", s.tag, err)
		return
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		util.LogWarning("[%08x] failed to set remote description: %v", s.tag, err)
		return
	}
	util.LogDebug("[%08x] answer applied", s.tag)
}

// OnRemoteICECandidate adds a candidate gathered by the client. Unknown
// sessions are ignored; malformed or rejected candidates are only logged.
func (m *Manager) OnRemoteICECandidate(sessionID, payload string) {
	s, ok := m.lookup(sessionID)
	if !ok {
		util.LogDebug("[%08x] ICE candidate for unknown session", util.SessionTag(sessionID))
		return
	}

	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(payload), &candidate); err != nil {
		util.LogWarning("[%08x] malformed ICE candidate: %v", s.tag, err)
		return
	}
	if err := s.pc.AddICECandidate(candidate); err != nil {
		util.LogWarning("[%08x] failed to add ICE candidate: %v", s.tag, err)
	}
}

// Has reports whether sessionID is live.
func (m *Manager) Has(sessionID string) bool {
	_, ok := m.lookup(sessionID)
	return ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close tears down every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		m.teardown(s)
	}
}

func (m *Manager) lookup(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// teardown removes s from the table, retires its id, stops its relay
// channels and closes the PeerConnection. Only the first call has effect;
// closing the PeerConnection re-enters here through the state callback.
func (m *Manager) teardown(s *Session) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
	}
	m.retired.Add(s.id)
	hooks := append([]func(string){}, m.onClosed...)
	m.mu.Unlock()

	s.cancel()
	if err := s.pc.Close(); err != nil {
		util.LogWarning("[%08x] failed to close PeerConnection: %v", s.tag, err)
	}

	util.Stats.RemoveSession()
	util.LogInfo("[%08x] session closed", s.tag)

	for _, fn := range hooks {
		fn(s.id)
	}
}
