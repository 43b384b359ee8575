// Package audioio provides audio capture and playback for voice sessions.
//
// Capture and playback devices are modeled as Source and Sink. The mock
// backend allows the full engine to run in CI without hardware; real
// deployments plug in a platform backend behind the same interfaces.
//
// All audio in this package is PCM16 little-endian. The session wire rate
// is 16 kHz mono; Resample converts whatever rate the capture device
// delivers into the wire rate.
package audioio

import (
	"fmt"
	"time"
)

// WireRate is the sample rate of all audio exchanged with the backend.
const WireRate = 16000

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendMock uses a synthetic implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio device configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `json:"backend"`

	// SampleRate is the device sample rate in Hz. This may differ from
	// WireRate; captured audio is resampled before sending.
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `json:"channels"`

	// BufferDuration is the size of one capture block.
	BufferDuration time.Duration `json:"buffer_duration"`

	// Device is the platform-specific device identifier.
	Device string `json:"device"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     WireRate,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per capture block.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}
