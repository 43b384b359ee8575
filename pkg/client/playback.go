package client

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sonara-ai/go-sonara/pkg/audioio"
)

// SchedulerConfig controls how synthesized speech is paced into the
// output device.
type SchedulerConfig struct {
	// SampleRate of the incoming PCM16 stream.
	SampleRate int

	// InitialBuffer is how much audio must accumulate before playback
	// starts. Zero starts playback on the first frame.
	InitialBuffer time.Duration

	// MinChunk is the smallest write issued to the sink while the
	// stream is still producing. Draining flushes any remainder.
	MinChunk time.Duration

	// MaxAhead bounds how far past real-time playback the scheduler
	// pushes into the device buffer.
	MaxAhead time.Duration

	// Tick is the pacing interval.
	Tick time.Duration
}

// Scheduler paces reply audio into a sink. It buffers the configured
// initial amount, then writes chunks no smaller than the minimum and
// never more than the maximum ahead of the playback clock. Interrupt
// discards everything immediately.
type Scheduler struct {
	cfg  SchedulerConfig
	sink audioio.Sink
	log  *slog.Logger

	mu        sync.Mutex
	buf       bytes.Buffer
	started   bool
	draining  bool
	startedAt time.Time
	written   int64 // bytes handed to the sink this stream
}

// NewScheduler creates a scheduler writing to sink. Run must be called
// to start pacing.
func NewScheduler(cfg SchedulerConfig, sink audioio.Sink, logger *slog.Logger) *Scheduler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audioio.WireRate
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, sink: sink, log: logger}
}

// Run paces writes until ctx is cancelled.
func (p *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.onTick(ctx)
		}
	}
}

// Begin resets the scheduler for a new reply stream.
func (p *Scheduler) Begin() {
	p.mu.Lock()
	p.buf.Reset()
	p.started = false
	p.draining = false
	p.written = 0
	p.mu.Unlock()
}

// Enqueue adds one frame of reply audio.
func (p *Scheduler) Enqueue(pcm []byte) {
	p.mu.Lock()
	_, _ = p.buf.Write(pcm)
	p.mu.Unlock()
}

// Drain marks the stream complete: the remaining buffer is flushed even
// below the minimum chunk size.
func (p *Scheduler) Drain() {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()
}

// Interrupt discards all buffered audio and clears the device buffer.
// Anything not yet audible is never played.
func (p *Scheduler) Interrupt() {
	p.mu.Lock()
	p.buf.Reset()
	p.started = false
	p.draining = false
	p.written = 0
	p.mu.Unlock()

	if err := p.sink.Clear(); err != nil {
		p.log.Warn("sink clear failed", "err", err)
	}
}

// Buffered returns the bytes queued but not yet written to the sink.
func (p *Scheduler) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Len()
}

func (p *Scheduler) bytesFor(d time.Duration) int64 {
	n := int64(d) * int64(p.cfg.SampleRate) * 2 / int64(time.Second)
	return n - n%2
}

func (p *Scheduler) onTick(ctx context.Context) {
	p.mu.Lock()

	if !p.started {
		need := p.bytesFor(p.cfg.InitialBuffer)
		if int64(p.buf.Len()) < need && !(p.draining && p.buf.Len() > 0) {
			p.mu.Unlock()
			return
		}
		p.started = true
		p.startedAt = time.Now()
	}

	if p.buf.Len() == 0 {
		p.mu.Unlock()
		return
	}

	// Never run further ahead of the playback clock than allowed.
	allowed := p.bytesFor(time.Since(p.startedAt)) + p.bytesFor(p.cfg.MaxAhead) - p.written
	if allowed <= 0 {
		p.mu.Unlock()
		return
	}

	n := int64(p.buf.Len())
	if n > allowed {
		n = allowed
	}
	n -= n % 2
	if n < p.bytesFor(p.cfg.MinChunk) && !p.draining {
		p.mu.Unlock()
		return
	}
	if n <= 0 {
		p.mu.Unlock()
		return
	}

	out := make([]byte, int(n))
	_, _ = p.buf.Read(out)
	p.written += n
	p.mu.Unlock()

	chunk := audioio.Chunk{
		Samples:    audioio.BytesToSamples(out),
		SampleRate: p.cfg.SampleRate,
		Channels:   1,
	}
	if err := p.sink.Write(ctx, chunk); err != nil {
		p.log.Warn("sink write failed", "err", err)
	}
}
