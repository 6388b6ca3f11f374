// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package xmodem implements XMODEM-1K block transfers with CRC16 validation.
//
// The engine runs over a Channel, a raw byte stream that is usually borrowed
// from a line-oriented serial session for the duration of one transfer. Both
// directions are supported: Send drives the sender state machine and Receive
// drives the receiver state machine.
package xmodem

import "time"

// Control bytes
const (
	SOH    = 0x01 // 128-byte block header (not used by XMODEM-1K senders)
	STX    = 0x02 // 1024-byte block header
	EOT    = 0x04
	ACK    = 0x06
	NAK    = 0x15
	CAN    = 0x18
	Filler = 0x1A
	CRCReq = 0x43 // 'C', receiver requests CRC mode
)

// Block layout
const (
	BlockSize  = 1024
	HeaderSize = 3 // STX, seq, 0xFF-seq
	CRCSize    = 2
	PacketSize = HeaderSize + BlockSize + CRCSize
)

// Retry policy defaults
const (
	DefaultMaxErrors       = 5
	DefaultStartAttempts   = 4
	DefaultStartRetryDelay = 1 * time.Second
	DefaultReadTimeout     = 3 * time.Second
	DefaultEOTDelay        = 100 * time.Millisecond
)
