package bridge

import (
	"context"

	"github.com/1ureka/camrelay/internal/transport"
)

// Service attaches the relay channels to every new session.
type Service struct {
	exec   Executor
	stream *StreamOptions
}

// NewService creates a Service relaying to exec. A nil stream disables the
// continuous capture channel.
func NewService(exec Executor, stream *StreamOptions) *Service {
	return &Service{exec: exec, stream: stream}
}

// Attach creates the API channel and, when enabled, the capture channel.
func (s *Service) Attach(ctx context.Context, sessionID string, pc transport.PeerConnection) error {
	if _, err := Attach(ctx, sessionID, pc, s.exec); err != nil {
		return err
	}
	if s.stream == nil {
		return nil
	}
	return AttachStream(ctx, sessionID, pc, *s.stream)
}
