// Package config loads go-sonara configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sonara-ai/go-sonara/internal/log"
)

// Config holds application configuration for both the server and client
// binaries. Values are read once at startup; components receive the parts
// they need at construction and never re-read the environment mid-session.
type Config struct {
	// Server
	HTTPAddress string
	LogLevel    string

	// Speech-to-text provider
	STTAPIKey      string
	STTBaseURL     string
	STTDialTimeout time.Duration

	// EngineMode selects endpointing: "conversation" or "command".
	EngineMode string

	// Conversation engine (ML end-of-turn detection)
	EOTThreshold float64
	EOTTimeout   time.Duration

	// Command engine (timer-based endpointing)
	UtteranceEnd    time.Duration
	Endpointing     time.Duration
	SmartFormat     bool
	Punctuate       bool
	Numerals        bool
	FillerWords     bool
	ProfanityFilter bool

	// Reply generation
	ReplyAPIKey string
	ReplyModel  string
	ReplyURL    string

	// Synthesis
	TTSAPIKey string
	TTSModel  string
	TTSURL    string

	// Client behavior
	ServerURL       string
	AutoSubmit      bool
	AutoSubmitDelay time.Duration

	// Playback scheduling
	InitialBufferSec float64
	MinChunkSec      float64
	MaxAheadSec      float64
	LowLatency       bool

	// Session liveness
	HeartbeatInterval time.Duration
}

// Load reads environment variables and returns a Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded", "err", err)
	}

	cfg := Config{
		HTTPAddress:    envString("HTTP_ADDRESS", ":8080"),
		LogLevel:       envString("LOG_LEVEL", "info"),
		STTAPIKey:      os.Getenv("STT_API_KEY"),
		STTBaseURL:     envString("STT_BASE_URL", "wss://api.deepgram.com"),
		STTDialTimeout: envDuration("STT_DIAL_TIMEOUT_MS", 10*time.Second),
		EngineMode:     envString("ENGINE_MODE", "conversation"),

		EOTThreshold: envFloat("EOT_THRESHOLD", 0.7),
		EOTTimeout:   envDuration("EOT_TIMEOUT_MS", 5*time.Second),

		UtteranceEnd:    envDuration("UTTERANCE_END_MS", 1000*time.Millisecond),
		Endpointing:     envDuration("ENDPOINTING_MS", 300*time.Millisecond),
		SmartFormat:     envBool("SMART_FORMAT", true),
		Punctuate:       envBool("PUNCTUATE", true),
		Numerals:        envBool("NUMERALS", false),
		FillerWords:     envBool("FILLER_WORDS", false),
		ProfanityFilter: envBool("PROFANITY_FILTER", false),

		ReplyAPIKey: os.Getenv("REPLY_API_KEY"),
		ReplyModel:  envString("REPLY_MODEL", "gpt-4o-mini"),
		ReplyURL:    envString("REPLY_URL", "https://api.openai.com/v1/chat/completions"),

		TTSAPIKey: os.Getenv("TTS_API_KEY"),
		TTSModel:  envString("TTS_MODEL", "aura-2-thalia-en"),
		TTSURL:    envString("TTS_URL", "https://api.deepgram.com/v1/speak"),

		ServerURL:       envString("SERVER_URL", "ws://localhost:8080"),
		AutoSubmit:      envBool("AUTO_SUBMIT", true),
		AutoSubmitDelay: envDuration("AUTO_SUBMIT_DELAY_MS", 800*time.Millisecond),

		InitialBufferSec: envFloat("PLAYBACK_INITIAL_BUFFER_SEC", 0.2),
		MinChunkSec:      envFloat("PLAYBACK_MIN_CHUNK_SEC", 0.05),
		MaxAheadSec:      envFloat("PLAYBACK_MAX_AHEAD_SEC", 2.0),
		LowLatency:       envBool("PLAYBACK_LOW_LATENCY", false),

		HeartbeatInterval: envDuration("HEARTBEAT_INTERVAL_MS", 30*time.Second),
	}

	if cfg.STTAPIKey == "" {
		log.Warn("STT_API_KEY not set - transcription will not work")
	}
	if cfg.ReplyAPIKey == "" {
		log.Warn("REPLY_API_KEY not set - reply generation will not work")
	}
	if cfg.TTSAPIKey == "" {
		log.Warn("TTS_API_KEY not set - synthesis will not work")
	}

	if cfg.LowLatency {
		cfg.InitialBufferSec = 0
	}

	return cfg
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("config: http address must not be empty")
	}
	if c.STTDialTimeout <= 0 {
		return fmt.Errorf("config: stt dial timeout must be positive, got %v", c.STTDialTimeout)
	}
	if c.EngineMode != "conversation" && c.EngineMode != "command" {
		return fmt.Errorf("config: unknown engine mode %q", c.EngineMode)
	}
	if c.EOTThreshold < 0 || c.EOTThreshold > 1 {
		return fmt.Errorf("config: eot threshold must be in [0,1], got %v", c.EOTThreshold)
	}
	if c.UtteranceEnd <= 0 {
		return fmt.Errorf("config: utterance end window must be positive, got %v", c.UtteranceEnd)
	}
	if c.AutoSubmitDelay < 0 {
		return fmt.Errorf("config: auto-submit delay must not be negative, got %v", c.AutoSubmitDelay)
	}
	if c.MinChunkSec < 0 || c.InitialBufferSec < 0 {
		return fmt.Errorf("config: playback buffer durations must not be negative")
	}
	if c.MaxAheadSec > 0 && c.MaxAheadSec < c.MinChunkSec {
		return fmt.Errorf("config: playback max-ahead %v is smaller than min chunk %v", c.MaxAheadSec, c.MinChunkSec)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: heartbeat interval must be positive, got %v", c.HeartbeatInterval)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn("invalid boolean in environment", "key", key, "value", v)
		return def
	}
	return b
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("invalid float in environment", "key", key, "value", v)
		return def
	}
	return f
}

// envDuration reads a millisecond count from the environment.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("invalid duration in environment", "key", key, "value", v)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
