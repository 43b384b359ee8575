// sonara-client: voice endpoint for the sonara backend.
// Captures audio, streams it to the server, and plays replies. Wake
// events are driven from the terminal:
//
//	a - activate (start listening)
//	b - barge in while the assistant is speaking
//	s - submit the staged utterance now
//	q - quit
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sonara-ai/go-sonara/internal/config"
	"github.com/sonara-ai/go-sonara/internal/log"
	"github.com/sonara-ai/go-sonara/pkg/audioio"
	"github.com/sonara-ai/go-sonara/pkg/client"
	"github.com/sonara-ai/go-sonara/pkg/protocol"
)

func main() {
	cfg := config.Load()
	log.Init(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	audioCfg := audioio.DefaultConfig()
	source, err := audioio.NewSource(audioCfg, log.L())
	if err != nil {
		log.Error("open capture device", "err", err)
		os.Exit(1)
	}
	sink, err := audioio.NewSink(audioCfg)
	if err != nil {
		log.Error("open playback device", "err", err)
		os.Exit(1)
	}

	c := client.New(client.Config{
		ServerURL:         cfg.ServerURL,
		Mode:              protocol.EngineMode(cfg.EngineMode),
		AutoSubmit:        cfg.AutoSubmit,
		AutoSubmitDelay:   cfg.AutoSubmitDelay,
		HeartbeatInterval: cfg.HeartbeatInterval / 2,
		Playback: client.SchedulerConfig{
			SampleRate:    audioio.WireRate,
			InitialBuffer: secs(cfg.InitialBufferSec),
			MinChunk:      secs(cfg.MinChunkSec),
			MaxAhead:      secs(cfg.MaxAheadSec),
		},
		Logger: log.L(),
	}, source, sink)

	c.OnTranscript = func(text string, isFinal bool) {
		marker := "…"
		if isFinal {
			marker = "✓"
		}
		fmt.Printf("  %s %s\n", marker, text)
	}
	c.OnState = func(state protocol.State) {
		fmt.Printf("[%s]\n", state)
	}
	c.OnError = func(message string) {
		fmt.Printf("! %s\n", message)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		_ = c.Close()
	}()

	if err := c.Connect(ctx); err != nil {
		log.Error("connect", "err", err)
		os.Exit(1)
	}

	go controlLoop(c, cancel)

	fmt.Printf("connected to %s (mode: %s)\n", cfg.ServerURL, cfg.EngineMode)
	if err := c.Run(ctx); err != nil {
		log.Error("client exited", "err", err)
		os.Exit(1)
	}
}

func controlLoop(c *client.Client, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var err error
		switch scanner.Text() {
		case "a":
			err = c.Activate()
		case "b":
			err = c.BargeIn()
		case "s":
			err = c.Submit()
		case "q":
			cancel()
			_ = c.Close()
			return
		default:
			continue
		}
		if err != nil {
			fmt.Printf("! %v\n", err)
		}
	}
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
