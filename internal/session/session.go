package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/1ureka/camrelay/internal/transport"
	"github.com/1ureka/camrelay/internal/util"
)

// Session is one client's PeerConnection plus the context its relay
// channels run under.
type Session struct {
	id  string
	tag uint32
	pc  transport.PeerConnection

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	// Local candidates gathered before the offer went out are held back so
	// the client never sees a candidate ahead of the description.
	mu        sync.Mutex
	offerSent bool
	pending   []string
}

func newSession(parent context.Context, id string, pc transport.PeerConnection) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:     id,
		tag:    util.SessionTag(id),
		pc:     pc,
		ctx:    ctx,
		cancel: cancel,
	}
}

// queueCandidate reports whether the candidate may be sent now. Otherwise it
// is held until releaseCandidates.
func (s *Session) queueCandidate(candidate string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offerSent {
		return true
	}
	s.pending = append(s.pending, candidate)
	return false
}

// releaseCandidates marks the offer as sent and returns the held candidates.
func (s *Session) releaseCandidates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offerSent = true
	pending := s.pending
	s.pending = nil
	return pending
}
