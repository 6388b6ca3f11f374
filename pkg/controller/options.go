// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"time"

	"github.com/rs/zerolog"
)

// Timings groups every delay the session waits on
type Timings struct {
	ConnectSettle      time.Duration // after opening, before probing
	ProbeTimeout       time.Duration // per status probe
	ProbeAttempts      int
	ResetLowHold       time.Duration // reset line held active
	ResetHighHold      time.Duration // after releasing reset
	TransferSettle     time.Duration // between arming a transfer and starting it
	CommandTimeout     time.Duration // default for helper commands
	WelcomeTimeout     time.Duration
	ResetLoopThreshold int
}

// DefaultTimings suit an ESP32 FluidNC board on USB serial
func DefaultTimings() Timings {
	return Timings{
		ConnectSettle:      time.Second,
		ProbeTimeout:       300 * time.Millisecond,
		ProbeAttempts:      10,
		ResetLowHold:       100 * time.Millisecond,
		ResetHighHold:      50 * time.Millisecond,
		TransferSettle:     time.Second,
		CommandTimeout:     3 * time.Second,
		WelcomeTimeout:     5 * time.Second,
		ResetLoopThreshold: 3,
	}
}

// Option configures a Session
type Option func(*Session)

func WithTimings(t Timings) Option {
	return func(s *Session) {
		s.timings = t
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithUnsolicitedHandler receives lines that arrive with no command waiting
func WithUnsolicitedHandler(fn func(line string)) Option {
	return func(s *Session) {
		s.unsolicited = fn
	}
}

// WithStatusHandler observes connection status transitions
func WithStatusHandler(fn func(from, to Status)) Option {
	return func(s *Session) {
		s.statusChanged = fn
	}
}
