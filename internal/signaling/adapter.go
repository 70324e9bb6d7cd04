package signaling

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/camrelay/internal/device"
	"github.com/1ureka/camrelay/internal/util"
)

// Hub methods invoked on the server.
const (
	methodOffer             = "Offer"
	methodIceCandidate      = "IceCandidate"
	methodCameraAPIResponse = "CameraApiResponse"
)

// Event name prefixes; the device or session id is appended.
const (
	eventStreamRequested = "ClientRequiresStream-"
	eventAnswer          = "VerifiedAnswer-"
	eventClientCandidate = "VerifiedIceCandidateFrom-client-"
	eventCameraAPI       = "CameraApiRequest-"
)

// hubRequestTimeout bounds a relay request made over signaling.
const hubRequestTimeout = 30 * time.Second

// HubConn is the part of Hub the Adapter uses.
type HubConn interface {
	On(target string, fn Handler)
	Off(target string)
	OnReconnected(fn func())
	Send(target string, args ...any) error
	Invoke(ctx context.Context, target string, args ...any) (json.RawMessage, error)
}

// SessionHandler receives the negotiation events of client sessions.
type SessionHandler interface {
	OnStreamRequested(sessionID string)
	OnAnswer(sessionID, payload string)
	OnRemoteICECandidate(sessionID, payload string)
}

// Executor runs relay requests that arrive over signaling instead of a data
// channel.
type Executor interface {
	Execute(ctx context.Context, path string) device.Response
}

// Adapter translates hub events into session operations and session output
// into hub invocations.
type Adapter struct {
	ctx      context.Context
	hub      HubConn
	deviceID string
	exec     Executor

	handler SessionHandler

	mu       sync.Mutex
	sessions map[string][]string // session id → registered event names
	retired  *util.Retired
}

// NewAdapter creates an Adapter for deviceID. Relay requests made over
// signaling run against exec under ctx.
func NewAdapter(ctx context.Context, hub HubConn, deviceID string, exec Executor) *Adapter {
	return &Adapter{
		ctx:      ctx,
		hub:      hub,
		deviceID: deviceID,
		exec:     exec,
		sessions: make(map[string][]string),
		retired:  util.NewRetired(util.DefaultRetiredLimit),
	}
}

// Start subscribes the device's stream-request event and routes it to
// handler. It also re-subscribes after every hub reconnect.
func (a *Adapter) Start(handler SessionHandler) {
	a.handler = handler
	a.listen()
	a.hub.OnReconnected(func() {
		a.listen()
		util.LogInfo("resubscribed device %s after reconnect (%d live sessions)", a.deviceID, a.Len())
	})
}

func (a *Adapter) listen() {
	a.hub.On(eventStreamRequested+a.deviceID, a.onStreamRequested)
}

// Len returns the number of sessions with dispatch entries.
func (a *Adapter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

func (a *Adapter) onStreamRequested(args []json.RawMessage) {
	sessionID, err := stringArg(args, 0)
	if err != nil || sessionID == "" {
		util.LogWarning("stream request without a session id: %v", err)
		return
	}

	tag := util.SessionTag(sessionID)
	util.LogInfo("[%08x] client requires stream", tag)

	a.mu.Lock()
	_, live := a.sessions[sessionID]
	retired := a.retired.Has(sessionID)
	if !live && !retired {
		events := []string{
			eventAnswer + sessionID,
			eventClientCandidate + sessionID,
			eventCameraAPI + sessionID,
		}
		a.hub.On(events[0], a.payloadHandler(sessionID, a.handler.OnAnswer))
		a.hub.On(events[1], a.payloadHandler(sessionID, a.handler.OnRemoteICECandidate))
		a.hub.On(events[2], a.cameraAPIHandler(sessionID))
		a.sessions[sessionID] = events
	}
	a.mu.Unlock()

	a.handler.OnStreamRequested(sessionID)
}

// payloadHandler routes an event whose last argument is the payload to fn
// for the session the entry was registered for.
func (a *Adapter) payloadHandler(sessionID string, fn func(sessionID, payload string)) Handler {
	return func(args []json.RawMessage) {
		if len(args) == 0 {
			util.LogWarning("[%08x] event without payload", util.SessionTag(sessionID))
			return
		}
		payload, err := stringArg(args, len(args)-1)
		if err != nil {
			util.LogWarning("[%08x] unreadable payload: %v", util.SessionTag(sessionID), err)
			return
		}
		fn(sessionID, payload)
	}
}

// cameraAPIHandler answers relay requests made over signaling. The request
// runs off the read loop because the reply is an invocation.
func (a *Adapter) cameraAPIHandler(sessionID string) Handler {
	return func(args []json.RawMessage) {
		if len(args) == 0 {
			util.LogWarning("[%08x] camera API request without a path", util.SessionTag(sessionID))
			return
		}
		path, err := stringArg(args, len(args)-1)
		if err != nil {
			util.LogWarning("[%08x] unreadable camera API path: %v", util.SessionTag(sessionID), err)
			return
		}
		go a.relayOverHub(sessionID, path)
	}
}

func (a *Adapter) relayOverHub(sessionID, path string) {
	tag := util.SessionTag(sessionID)
	ctx, cancel := context.WithTimeout(a.ctx, hubRequestTimeout)
	defer cancel()

	util.Stats.AddRequest()
	resp := a.exec.Execute(ctx, path)

	var text, encoded any
	ok := resp.OK
	switch {
	case resp.Kind.IsText():
		text = resp.Text
	case resp.Kind.IsBinary():
		encoded = base64.StdEncoding.EncodeToString(resp.Body)
	default:
		ok = false
	}
	if !ok {
		util.Stats.AddFailure()
	}

	if _, err := a.hub.Invoke(ctx, methodCameraAPIResponse, sessionID, ok, text, encoded); err != nil {
		util.LogWarning("[%08x] failed to answer camera API request %s: %v", tag, path, err)
		return
	}
	util.LogDebug("[%08x] camera API request %s answered over hub (%s)", tag, path, resp.Kind)
}

// Forget removes the dispatch entries of sessionID.
func (a *Adapter) Forget(sessionID string) {
	a.mu.Lock()
	events := a.sessions[sessionID]
	delete(a.sessions, sessionID)
	a.retired.Add(sessionID)
	a.mu.Unlock()

	for _, e := range events {
		a.hub.Off(e)
	}
}

// SendOffer forwards the SDP offer of sessionID.
func (a *Adapter) SendOffer(ctx context.Context, sessionID, sdp string) error {
	if _, err := a.hub.Invoke(ctx, methodOffer, sessionID, sdp); err != nil {
		return fmt.Errorf("invoke %s: %w", methodOffer, err)
	}
	return nil
}

// SendICECandidate forwards a locally gathered candidate of sessionID.
func (a *Adapter) SendICECandidate(_ context.Context, sessionID, candidate, role string) error {
	if err := a.hub.Send(methodIceCandidate, sessionID, candidate, role); err != nil {
		return fmt.Errorf("send %s: %w", methodIceCandidate, err)
	}
	return nil
}
