package bridge

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/camrelay/internal/device"
	"github.com/1ureka/camrelay/internal/protocol"
	"github.com/1ureka/camrelay/internal/transport/transporttest"
)

const waitTimeout = 2 * time.Second

// stubExecutor answers every path from a fixed table. Unknown paths fail.
type stubExecutor struct {
	responses map[string]device.Response

	// gate, when set, blocks every Execute until it receives a value.
	gate    chan struct{}
	started chan string

	mu      sync.Mutex
	paths   []string
	running int
	maxSeen int
}

func (e *stubExecutor) Execute(ctx context.Context, path string) device.Response {
	e.mu.Lock()
	e.paths = append(e.paths, path)
	e.running++
	e.maxSeen = max(e.maxSeen, e.running)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running--
		e.mu.Unlock()
	}()

	if e.started != nil {
		e.started <- path
	}
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
		}
	}

	if r, ok := e.responses[path]; ok {
		return r
	}
	return device.Response{Kind: device.KindFailed}
}

func (e *stubExecutor) Paths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.paths...)
}

func patterned(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}

// attach wires a Bridge to a fresh fake peer and returns its open channel.
func attach(t *testing.T, exec Executor) *transporttest.Channel {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	peer := transporttest.NewPeer()
	if _, err := Attach(ctx, "session-1", peer, exec); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	ch := peer.Channel(APIChannelLabel)
	if ch == nil {
		t.Fatalf("channel %q was not created", APIChannelLabel)
	}
	ch.Open()
	return ch
}

func TestAttachConfiguresAPIChannel(t *testing.T) {
	peer := transporttest.NewPeer()
	b, err := Attach(t.Context(), "s", peer, &stubExecutor{})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if got := b.Channel().Label(); got != "cameraApiChannel" {
		t.Fatalf("label = %q, want cameraApiChannel", got)
	}
	if got := peer.Channel(APIChannelLabel).BufferedAmountLowThreshold(); got != 1000*1024 {
		t.Fatalf("threshold = %d, want %d", got, 1000*1024)
	}

	// Lifecycle notifications are only logged.
	ch := peer.Channel(APIChannelLabel)
	ch.Drain()
	ch.Fail(context.Canceled)
	ch.Hangup()
}

func TestRelayTextResponses(t *testing.T) {
	exec := &stubExecutor{responses: map[string]device.Response{
		"/status":  {Kind: device.KindJSON, OK: true, Status: 200, Text: `{"state":"idle"}`},
		"/missing": {Kind: device.KindText, OK: false, Status: 404, Text: "not found"},
	}}

	tests := []struct {
		name    string
		request string
		want    string
	}{
		{
			name:    "json",
			request: `{"path":"/status"}`,
			want:    `{"ok":true,"text":"{\"state\":\"idle\"}"}`,
		},
		{
			name:    "text with error status",
			request: `{"path":"/missing","chunk":true}`,
			want:    `{"ok":false,"text":"not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := attach(t, exec)
			ch.Deliver(tt.request)

			sent := ch.WaitSent(1, waitTimeout)
			if len(sent) != 1 {
				t.Fatalf("sent %d messages, want 1", len(sent))
			}
			if !sent[0].Text || sent[0].String() != tt.want {
				t.Fatalf("reply = %q (text=%t), want %q", sent[0].String(), sent[0].Text, tt.want)
			}
		})
	}
}

func TestRelayBinaryResponses(t *testing.T) {
	image := patterned(250 * 1024)
	exec := &stubExecutor{responses: map[string]device.Response{
		"/image":  {Kind: device.KindImage, OK: true, Status: 200, Body: image},
		"/raw":    {Kind: device.KindOctetStream, OK: true, Status: 200, Body: []byte{1, 2, 3}},
		"/nobody": {Kind: device.KindImage, OK: true, Status: 200},
	}}

	t.Run("chunked image", func(t *testing.T) {
		ch := attach(t, exec)
		ch.Deliver(`{"path":"/image","chunk":true}`)

		sent := ch.WaitSent(4, waitTimeout)
		if len(sent) != 4 {
			t.Fatalf("sent %d messages, want 3 chunks + sentinel", len(sent))
		}

		var body []byte
		for i, m := range sent[:3] {
			if m.Text {
				t.Fatalf("message %d is text, want binary", i)
			}
			if len(m.Data) > protocol.ChunkSize {
				t.Fatalf("chunk %d is %d bytes, exceeds %d", i, len(m.Data), protocol.ChunkSize)
			}
			body = append(body, m.Data...)
		}
		if !bytes.Equal(body, image) {
			t.Fatal("reassembled chunks differ from the image")
		}
		if last := sent[3]; !last.Text || last.String() != "Done" {
			t.Fatalf("last message = %q (text=%t), want text Done", last.String(), last.Text)
		}
	})

	t.Run("unchunked image", func(t *testing.T) {
		ch := attach(t, exec)
		ch.Deliver(`{"path":"/image","chunk":false}`)

		ch.WaitSent(1, waitTimeout)
		time.Sleep(20 * time.Millisecond)
		sent := ch.Sent()
		if len(sent) != 1 {
			t.Fatalf("sent %d messages, want 1", len(sent))
		}
		if sent[0].Text || !bytes.Equal(sent[0].Data, image) {
			t.Fatal("unchunked reply is not the raw image")
		}
	})

	t.Run("octet stream", func(t *testing.T) {
		ch := attach(t, exec)
		ch.Deliver(`{"path":"/raw"}`)

		sent := ch.WaitSent(1, waitTimeout)
		if len(sent) != 1 || sent[0].Text || !bytes.Equal(sent[0].Data, []byte{1, 2, 3}) {
			t.Fatalf("reply = %+v, want one binary message 01 02 03", sent)
		}
	})

	t.Run("empty image chunked", func(t *testing.T) {
		ch := attach(t, exec)
		ch.Deliver(`{"path":"/nobody","chunk":true}`)

		sent := ch.WaitSent(2, waitTimeout)
		if len(sent) != 2 {
			t.Fatalf("sent %d messages, want empty chunk + sentinel", len(sent))
		}
		if sent[0].Text || len(sent[0].Data) != 0 {
			t.Fatalf("first message = %+v, want empty binary chunk", sent[0])
		}
		if sent[1].String() != "Done" {
			t.Fatalf("second message = %q, want Done", sent[1].String())
		}
	})
}

func TestRelayFailuresAnswerNotOK(t *testing.T) {
	exec := &stubExecutor{responses: map[string]device.Response{
		"/weird": {Kind: device.KindUnknown, OK: true, Status: 200},
		"/down":  {Kind: device.KindFailed},
	}}

	tests := []struct {
		name    string
		request string
	}{
		{"malformed json", `{"path":`},
		{"not an object", `"hello"`},
		{"missing path", `{"chunk":true}`},
		{"unknown content type", `{"path":"/weird"}`},
		{"device unreachable", `{"path":"/down"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := attach(t, exec)
			ch.Deliver(tt.request)

			sent := ch.WaitSent(1, waitTimeout)
			if len(sent) != 1 || !sent[0].Text || sent[0].String() != `{"ok":false}` {
				t.Fatalf("reply = %+v, want {\"ok\":false}", sent)
			}
		})
	}
}

func TestRelayOnClosedChannelIsDropped(t *testing.T) {
	started := make(chan string, 1)
	exec := &stubExecutor{
		started: started,
		responses: map[string]device.Response{
			"/status": {Kind: device.KindJSON, OK: true, Text: "{}"},
		},
	}

	peer := transporttest.NewPeer()
	if _, err := Attach(t.Context(), "s", peer, exec); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	ch := peer.Channel(APIChannelLabel)

	// Never opened: the request runs but the reply goes nowhere.
	ch.Deliver(`{"path":"/status"}`)
	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("request was not executed")
	}

	if sent := ch.WaitSent(1, 50*time.Millisecond); len(sent) != 0 {
		t.Fatalf("sent %d messages on a connecting channel", len(sent))
	}
}

func TestRelayRequestsAreSerialized(t *testing.T) {
	exec := &stubExecutor{
		gate:    make(chan struct{}),
		started: make(chan string, 8),
		responses: map[string]device.Response{
			"/a": {Kind: device.KindText, OK: true, Text: "a"},
			"/b": {Kind: device.KindText, OK: true, Text: "b"},
			"/c": {Kind: device.KindText, OK: true, Text: "c"},
		},
	}
	ch := attach(t, exec)

	ch.Deliver(`{"path":"/a"}`)
	ch.Deliver(`{"path":"/b"}`)
	ch.Deliver(`{"path":"/c"}`)

	for range 3 {
		select {
		case <-exec.started:
		case <-time.After(waitTimeout):
			t.Fatal("request was not executed")
		}
		exec.gate <- struct{}{}
	}

	sent := ch.WaitSent(3, waitTimeout)
	want := []string{
		`{"ok":true,"text":"a"}`,
		`{"ok":true,"text":"b"}`,
		`{"ok":true,"text":"c"}`,
	}
	if len(sent) != len(want) {
		t.Fatalf("sent %d messages, want %d", len(sent), len(want))
	}
	for i := range want {
		if sent[i].String() != want[i] {
			t.Fatalf("reply %d = %q, want %q", i, sent[i].String(), want[i])
		}
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.maxSeen != 1 {
		t.Fatalf("%d requests ran concurrently, want 1", exec.maxSeen)
	}
}

func TestRelayQueueOverflow(t *testing.T) {
	exec := &stubExecutor{
		gate:    make(chan struct{}),
		started: make(chan string, queueSize+2),
		responses: map[string]device.Response{
			"/slow": {Kind: device.KindText, OK: true, Text: "done"},
		},
	}
	ch := attach(t, exec)

	ch.Deliver(`{"path":"/slow"}`)
	select {
	case <-exec.started:
	case <-time.After(waitTimeout):
		t.Fatal("first request was not executed")
	}

	// The worker is busy: queueSize requests wait, the next one overflows.
	for range queueSize + 1 {
		ch.Deliver(`{"path":"/slow"}`)
	}

	sent := ch.WaitSent(1, waitTimeout)
	if len(sent) != 1 || sent[0].String() != `{"ok":false}` {
		t.Fatalf("overflow reply = %+v, want {\"ok\":false}", sent)
	}

	close(exec.gate)
	sent = ch.WaitSent(queueSize+2, waitTimeout)
	if len(sent) != queueSize+2 {
		t.Fatalf("sent %d messages, want %d", len(sent), queueSize+2)
	}
}
