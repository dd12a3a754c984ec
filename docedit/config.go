package docedit

import (
	"log/slog"
	"time"
)

// Config configures the edit pipeline.
type Config struct {
	// MaxSessions bounds concurrent editing sessions (default: 4).
	MaxSessions int `json:"max_sessions" yaml:"max_sessions"`

	// MaxBombRatio is the maximum allowed declared-uncompressed to
	// compressed size ratio (default: 100).
	MaxBombRatio float64 `json:"max_bomb_ratio" yaml:"max_bomb_ratio"`

	// MaxUncompressedBytes caps the declared total uncompressed size and
	// the bytes actually inflated during repack (default: 500 MB).
	MaxUncompressedBytes int64 `json:"max_uncompressed_bytes" yaml:"max_uncompressed_bytes"`

	// AdmissionWait is how long a request may wait for a session slot
	// before failing with ErrOverloaded (default: 30s).
	AdmissionWait time.Duration `json:"admission_wait" yaml:"admission_wait"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 4
	}
	if c.MaxBombRatio <= 0 {
		c.MaxBombRatio = 100
	}
	if c.MaxUncompressedBytes <= 0 {
		c.MaxUncompressedBytes = 500 * 1024 * 1024
	}
	if c.AdmissionWait <= 0 {
		c.AdmissionWait = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
