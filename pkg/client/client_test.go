package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonara-ai/go-sonara/pkg/audioio"
	"github.com/sonara-ai/go-sonara/pkg/protocol"
)

// fakeBackend is a scripted server on a real WebSocket.
type fakeBackend struct {
	t *testing.T

	mu   sync.Mutex
	conn *websocket.Conn
	recv []*protocol.Message

	connected chan struct{}
}

func newFakeBackend(t *testing.T) (*fakeBackend, string) {
	t.Helper()

	b := &fakeBackend{t: t, connected: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/voice" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		close(b.connected)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.Parse(data)
			if err != nil {
				continue
			}
			b.mu.Lock()
			b.recv = append(b.recv, msg)
			b.mu.Unlock()
		}
	}))
	t.Cleanup(srv.Close)

	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (b *fakeBackend) push(t *testing.T, msg *protocol.Message) {
	t.Helper()
	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func (b *fakeBackend) pushState(t *testing.T, state protocol.State) {
	t.Helper()
	msg, err := protocol.NewSetStateMessage(state)
	if err != nil {
		t.Fatalf("NewSetStateMessage: %v", err)
	}
	b.push(t, msg)
}

func (b *fakeBackend) countType(msgType protocol.MessageType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.recv {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

func startTestClient(t *testing.T, cfg Config) (*Client, *fakeBackend, *audioio.MockSink) {
	t.Helper()

	backend, url := newFakeBackend(t)
	cfg.ServerURL = url

	source := audioio.NewMockSource(audioio.DefaultConfig(), nil)
	sink := audioio.NewMockSink(audioio.DefaultConfig())

	c := New(cfg, source, sink)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { c.Close() })

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	go func() { _ = c.Run(ctx) }()

	select {
	case <-backend.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("client never reached the backend")
	}
	return c, backend, sink
}

func TestClientFollowsStatePushes(t *testing.T) {
	var mu sync.Mutex
	var seen []protocol.State

	c, backend, _ := startTestClient(t, Config{Mode: protocol.ModeConversation})
	c.OnState = func(s protocol.State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}

	states := []protocol.State{
		protocol.StateListening,
		protocol.StateProcessing,
		protocol.StateSpeaking,
		protocol.StateIdle,
	}
	for _, s := range states {
		backend.pushState(t, s)
	}

	waitFor(t, func() bool { return c.State() == protocol.StateIdle }, "final state")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(states) {
		t.Fatalf("followed %d transitions, want %d", len(seen), len(states))
	}
	for i := range states {
		if seen[i] != states[i] {
			t.Fatalf("transition %d = %s, want %s", i, seen[i], states[i])
		}
	}
}

func TestClientAutoSubmitAfterQuiet(t *testing.T) {
	_, backend, _ := startTestClient(t, Config{
		Mode:            protocol.ModeCommand,
		AutoSubmit:      true,
		AutoSubmitDelay: 30 * time.Millisecond,
	})

	backend.pushState(t, protocol.StateListening)
	msg, _ := protocol.NewTranscriptMessage("turn off the lamp", true)
	backend.push(t, msg)

	waitFor(t, func() bool { return backend.countType(protocol.TypeStreamEnd) == 1 }, "auto-submit")
}

func TestClientAutoSubmitCancelledByStateChange(t *testing.T) {
	_, backend, _ := startTestClient(t, Config{
		Mode:            protocol.ModeCommand,
		AutoSubmit:      true,
		AutoSubmitDelay: 50 * time.Millisecond,
	})

	backend.pushState(t, protocol.StateListening)
	msg, _ := protocol.NewTranscriptMessage("turn off", true)
	backend.push(t, msg)

	// The backend moves on before the quiet period elapses.
	backend.pushState(t, protocol.StateProcessing)

	time.Sleep(120 * time.Millisecond)
	if n := backend.countType(protocol.TypeStreamEnd); n != 0 {
		t.Fatalf("stream_end sent %d times after cancellation, want 0", n)
	}
}

func TestClientInterruptDropsBufferedReplyAudio(t *testing.T) {
	c, backend, sink := startTestClient(t, Config{
		Mode: protocol.ModeConversation,
		Playback: SchedulerConfig{
			// A large gate keeps every frame buffered, so the interrupt
			// has something to discard.
			InitialBuffer: time.Second,
		},
	})

	backend.pushState(t, protocol.StateSpeaking)
	for i := 0; i < 3; i++ {
		msg, _ := protocol.NewTTSAudioMessage(make([]byte, 640))
		backend.push(t, msg)
	}
	waitFor(t, func() bool { return c.sched.Buffered() == 1920 }, "frames buffered")

	interrupt, _ := protocol.NewMessage(protocol.TypeInterruptTTS, nil)
	backend.push(t, interrupt)
	waitFor(t, func() bool { return c.sched.Buffered() == 0 }, "buffer discarded")

	// A frame of the dead stream straggling in after the interrupt is
	// dropped, not played.
	msg, _ := protocol.NewTTSAudioMessage(make([]byte, 640))
	backend.push(t, msg)
	backend.pushState(t, protocol.StateListening)
	waitFor(t, func() bool { return c.State() == protocol.StateListening }, "state follow")

	if got := c.sched.Buffered(); got != 0 {
		t.Fatalf("stale frame buffered (%d bytes)", got)
	}
	if n := sink.Stats().SamplesWritten; n != 0 {
		t.Fatalf("%d samples reached the sink despite the interrupt", n)
	}
	if sink.Stats().Cleared == 0 {
		t.Fatal("sink was never cleared")
	}
}

func TestClientForwardsAudioOnlyWhileListening(t *testing.T) {
	_, backend, _ := startTestClient(t, Config{Mode: protocol.ModeCommand})

	// Idle: the mic runs but nothing is sent.
	time.Sleep(80 * time.Millisecond)
	if n := backend.countType(protocol.TypeAudioChunk); n != 0 {
		t.Fatalf("%d audio chunks sent while idle", n)
	}

	backend.pushState(t, protocol.StateListening)
	waitFor(t, func() bool { return backend.countType(protocol.TypeAudioChunk) > 0 }, "mic audio flowing")
}
