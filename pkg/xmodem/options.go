// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xmodem

import (
	"time"

	"github.com/rs/zerolog"
)

// Progress reports how far a transfer has come.
// Passed to ProgressCallback after every accepted block.
type Progress struct {
	// Op is "upload" or "download"
	Op string

	// Block is the number of blocks accepted so far
	Block int

	// Bytes is the number of payload bytes accepted so far
	Bytes int

	// Total is the payload size, or 0 when unknown (downloads)
	Total int
}

// ProgressCallback is invoked synchronously from the transfer loop.
// Implementations should return quickly.
type ProgressCallback func(Progress)

// Config holds the transfer configuration.
type Config struct {
	// MaxErrors is the number of consecutive per-block failures tolerated
	MaxErrors int

	// StartAttempts bounds the handshake wait
	StartAttempts int

	// StartRetryDelay is how long each handshake attempt waits
	StartRetryDelay time.Duration

	// ReadTimeout bounds each wait for a frame or a reply byte
	ReadTimeout time.Duration

	// EOTDelay is the pause between EOT resends
	EOTDelay time.Duration

	Progress ProgressCallback
	Logger   zerolog.Logger
	Stats    *Statistics
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxErrors:       DefaultMaxErrors,
		StartAttempts:   DefaultStartAttempts,
		StartRetryDelay: DefaultStartRetryDelay,
		ReadTimeout:     DefaultReadTimeout,
		EOTDelay:        DefaultEOTDelay,
		Logger:          zerolog.Nop(),
	}
}

// Option is a functional option for configuring a Transfer.
type Option func(*Config)

// WithMaxErrors sets the retry bound for a single block.
func WithMaxErrors(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxErrors = n
		}
	}
}

// WithStart sets the handshake attempt count and the wait per attempt.
func WithStart(attempts int, delay time.Duration) Option {
	return func(c *Config) {
		if attempts > 0 {
			c.StartAttempts = attempts
		}
		if delay > 0 {
			c.StartRetryDelay = delay
		}
	}
}

// WithReadTimeout sets the wait for each frame or reply byte.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ReadTimeout = timeout
		}
	}
}

// WithEOTDelay sets the pause between EOT resends.
func WithEOTDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.EOTDelay = delay
	}
}

// WithProgressCallback sets a callback to track transfer progress.
//
// Example:
//
//	t := xmodem.New(ch, xmodem.WithProgressCallback(func(p xmodem.Progress) {
//	    fmt.Printf("%d bytes\n", p.Bytes)
//	}))
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *Config) {
		c.Progress = cb
	}
}

// WithLogger sets the logger for handshake and retry events.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithStatistics collects counters into stats.
func WithStatistics(stats *Statistics) Option {
	return func(c *Config) {
		c.Stats = stats
	}
}
