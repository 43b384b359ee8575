package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource creates a capture device for the configured backend.
// BackendAuto currently resolves to the mock backend; platform capture
// backends register here as they land.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendAuto, BackendMock:
		return NewMockSource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

// NewSink creates a playback device for the configured backend.
func NewSink(cfg Config) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendAuto, BackendMock:
		return NewMockSink(cfg), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}
