// sonara-server: voice session backend.
// Accepts WebSocket connections from voice clients and runs the
// turn-taking engine against the speech and reply providers.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sonara-ai/go-sonara/internal/config"
	"github.com/sonara-ai/go-sonara/internal/log"
	"github.com/sonara-ai/go-sonara/pkg/audioio"
	"github.com/sonara-ai/go-sonara/pkg/protocol"
	"github.com/sonara-ai/go-sonara/pkg/reply"
	"github.com/sonara-ai/go-sonara/pkg/server"
	"github.com/sonara-ai/go-sonara/pkg/session"
	"github.com/sonara-ai/go-sonara/pkg/stt"
	"github.com/sonara-ai/go-sonara/pkg/tts"
)

func main() {
	cfg := config.Load()
	log.Init(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	sessCfg := session.Config{
		Settings:          settingsFunc(cfg),
		NewRecognizer:     stt.NewDeepgram,
		Replies:           reply.NewOpenAIClient(cfg.ReplyAPIKey, cfg.ReplyModel, cfg.ReplyURL),
		Synth:             tts.NewDeepgramSynthesizer(cfg.TTSAPIKey, cfg.TTSModel, cfg.TTSURL),
		HeartbeatInterval: cfg.HeartbeatInterval,
		Logger:            log.L(),
	}

	srv := server.New(cfg.HTTPAddress, sessCfg, log.L())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info("shutting down")
		if err := srv.Shutdown(); err != nil {
			log.Warn("shutdown error", "err", err)
		}
	}()

	log.Info("sonara server starting",
		"addr", cfg.HTTPAddress,
		"engine_mode", cfg.EngineMode,
	)
	if err := srv.Listen(); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

// settingsFunc builds the per-episode settings snapshot from config.
func settingsFunc(cfg config.Config) func() session.Settings {
	mode := protocol.EngineMode(cfg.EngineMode)

	return func() session.Settings {
		return session.Settings{
			Mode: mode,
			STT: stt.Config{
				APIKey:          cfg.STTAPIKey,
				BaseURL:         cfg.STTBaseURL,
				Mode:            mode,
				SampleRate:      audioio.WireRate,
				DialTimeout:     cfg.STTDialTimeout,
				EOTThreshold:    cfg.EOTThreshold,
				EOTTimeout:      cfg.EOTTimeout,
				UtteranceEnd:    cfg.UtteranceEnd,
				Endpointing:     cfg.Endpointing,
				SmartFormat:     cfg.SmartFormat,
				Punctuate:       cfg.Punctuate,
				Numerals:        cfg.Numerals,
				FillerWords:     cfg.FillerWords,
				ProfanityFilter: cfg.ProfanityFilter,
			},
		}
	}
}
