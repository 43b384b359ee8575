package stt

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockRecognizer is a scripted recognizer for tests. Transcript events are
// injected with Emit and audio frames are recorded for inspection.
type MockRecognizer struct {
	Cfg Config

	// ConnectErr, when set, makes Connect fail.
	ConnectErr error

	mu        sync.Mutex
	connected bool
	closed    bool
	sent      [][]byte

	events    chan TranscriptEvent
	errs      chan error
	closeOnce sync.Once

	tracker *MockTracker
}

// MockTracker observes recognizer lifecycles across one test. It records
// how many provider connections are open simultaneously so tests can
// assert the at-most-one invariant.
type MockTracker struct {
	open    atomic.Int32
	maxOpen atomic.Int32
	created atomic.Int32
}

// NewMockTracker creates a tracker.
func NewMockTracker() *MockTracker { return &MockTracker{} }

// Factory returns a Factory producing tracked mock recognizers.
func (t *MockTracker) Factory() Factory {
	return func(cfg Config) Recognizer {
		t.created.Add(1)
		return &MockRecognizer{
			Cfg:     cfg,
			events:  make(chan TranscriptEvent, 64),
			errs:    make(chan error, 4),
			tracker: t,
		}
	}
}

// MaxOpen returns the highest number of simultaneously open connections.
func (t *MockTracker) MaxOpen() int { return int(t.maxOpen.Load()) }

// Open returns the number of currently open connections.
func (t *MockTracker) Open() int { return int(t.open.Load()) }

// Created returns the number of recognizers constructed.
func (t *MockTracker) Created() int { return int(t.created.Load()) }

// NewMockRecognizer creates an untracked mock.
func NewMockRecognizer(cfg Config) *MockRecognizer {
	return &MockRecognizer{
		Cfg:    cfg,
		events: make(chan TranscriptEvent, 64),
		errs:   make(chan error, 4),
	}
}

// Connect marks the recognizer open.
func (m *MockRecognizer) Connect(ctx context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotConnected
	}
	if m.connected {
		return ErrAlreadyConnected
	}
	m.connected = true

	if m.tracker != nil {
		n := m.tracker.open.Add(1)
		for {
			max := m.tracker.maxOpen.Load()
			if n <= max || m.tracker.maxOpen.CompareAndSwap(max, n) {
				break
			}
		}
	}
	return nil
}

// SendAudio records the frame.
func (m *MockRecognizer) SendAudio(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	m.sent = append(m.sent, buf)
	return nil
}

// Sent returns the audio frames received so far.
func (m *MockRecognizer) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// Emit injects a transcript event.
func (m *MockRecognizer) Emit(ev TranscriptEvent) {
	m.events <- ev
}

// EmitError injects a provider error.
func (m *MockRecognizer) EmitError(err error) {
	m.errs <- err
}

// Events returns the transcript event channel.
func (m *MockRecognizer) Events() <-chan TranscriptEvent { return m.events }

// Errors returns the provider error channel.
func (m *MockRecognizer) Errors() <-chan error { return m.errs }

// IsConnected reports whether Connect succeeded and Close has not run.
func (m *MockRecognizer) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Close marks the recognizer closed and closes the event channel.
func (m *MockRecognizer) Close() error {
	m.mu.Lock()
	wasConnected := m.connected
	m.connected = false
	m.closed = true
	m.mu.Unlock()

	if wasConnected && m.tracker != nil {
		m.tracker.open.Add(-1)
	}
	m.closeOnce.Do(func() { close(m.events) })
	return nil
}
