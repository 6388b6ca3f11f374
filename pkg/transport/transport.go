// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the byte channels a controller session runs over.
//
// A Transport is exclusively owned by one session. Incoming bytes are pushed
// to a single registered reader callback from an internal goroutine.
package transport

import "errors"

// ErrNotOpen is returned when writing to a transport that is not open
var ErrNotOpen = errors.New("transport not open")

// ErrSignalsUnsupported is returned by transports without DTR/RTS lines
var ErrSignalsUnsupported = errors.New("transport does not support hardware signals")

// ErrConnectionClosed is returned when the remote end went away
var ErrConnectionClosed = errors.New("connection closed")

// Reader receives chunks of incoming bytes. Each chunk is a fresh copy.
type Reader func(data []byte)

// Transport is an ordered byte duplex channel to the controller
type Transport interface {
	Open() error
	Close() error
	IsOpen() bool

	Write(p []byte) (int, error)

	// SetReader replaces the reader callback. nil discards input.
	SetReader(r Reader)

	// SetDTR drives the "data terminal ready" line
	SetDTR(level bool) error

	// SetRTS drives the "request to send" line
	SetRTS(level bool) error

	// String describes the connection for humans
	String() string
}
