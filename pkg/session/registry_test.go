package session

import (
	"context"
	"testing"
	"time"

	"github.com/sonara-ai/go-sonara/pkg/protocol"
	"github.com/sonara-ai/go-sonara/pkg/reply"
	"github.com/sonara-ai/go-sonara/pkg/stt"
	"github.com/sonara-ai/go-sonara/pkg/tts"
)

func registryConfig(heartbeat time.Duration) Config {
	f := &recFactory{}
	return Config{
		Settings: func() Settings {
			return Settings{Mode: protocol.ModeCommand, STT: stt.Config{APIKey: "test"}}
		},
		NewRecognizer:     f.New,
		Replies:           &reply.MockGenerator{Reply: "Ok."},
		Synth:             &tts.MockSynthesizer{FrameCount: 1, FrameSize: 640},
		HeartbeatInterval: heartbeat,
	}
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := r.NewSession(ctx, registryConfig(0), &captureSender{})
	b := r.NewSession(ctx, registryConfig(0), &captureSender{})

	if a.ID() == b.ID() {
		t.Fatal("session ids must be unique")
	}
	if r.Count() != 2 {
		t.Fatalf("count = %d, want 2", r.Count())
	}
	if r.Get(a.ID()) != a {
		t.Fatal("Get returned wrong session")
	}

	a.Stop()
	waitFor(t, func() bool { return r.Count() == 1 }, "session deregistered")
	if r.Get(a.ID()) != nil {
		t.Fatal("stopped session still resolvable")
	}

	r.StopAll()
	waitFor(t, func() bool { return r.Count() == 0 }, "registry drained")
}

func TestRegistryResetAll(t *testing.T) {
	r := NewRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	senders := []*captureSender{{}, {}}
	for _, snd := range senders {
		r.NewSession(ctx, registryConfig(0), snd)
	}

	if n := r.ResetAll(); n != 2 {
		t.Fatalf("ResetAll = %d, want 2", n)
	}
	for i, snd := range senders {
		snd := snd
		waitFor(t, func() bool { return snd.hasType(protocol.TypeSessionReset) }, "reset broadcast")
		if !senders[i].hasType(protocol.TypeSetState) {
			t.Fatalf("sender %d missing state push", i)
		}
	}
}

func TestRegistryReapsSilentSession(t *testing.T) {
	r := NewRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := r.NewSession(ctx, registryConfig(40*time.Millisecond), &captureSender{})

	// Keep it alive past the first deadline, then go silent.
	deliverType(t, s, protocol.TypeHeartbeat)
	time.Sleep(30 * time.Millisecond)
	deliverType(t, s, protocol.TypeHeartbeat)
	if r.Count() != 1 {
		t.Fatal("heartbeating session must not be reaped")
	}

	waitFor(t, func() bool { return r.Count() == 0 }, "silent session reaped")
}

func TestRegistryCounters(t *testing.T) {
	r := NewRegistry(nil)

	r.CountMessageIn(false)
	r.CountMessageIn(true)
	r.CountMessageOut()

	stats := r.Snapshot()
	if stats.MessagesIn != 2 {
		t.Fatalf("MessagesIn = %d, want 2", stats.MessagesIn)
	}
	if stats.AudioFramesIn != 1 {
		t.Fatalf("AudioFramesIn = %d, want 1", stats.AudioFramesIn)
	}
	if stats.MessagesOut != 1 {
		t.Fatalf("MessagesOut = %d, want 1", stats.MessagesOut)
	}
}
