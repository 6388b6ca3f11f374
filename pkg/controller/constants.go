// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package controller talks to FluidNC-style CNC firmware over a Transport.
//
// A Session owns the transport's byte stream. In line mode it splits input
// into lines and routes each one to the Command at the head of its queue.
// For file transfers it switches to block mode and lends the raw stream to
// the xmodem engine.
package controller

// Realtime control bytes. These are acted on by the firmware as soon as they
// arrive and never produce an "ok".
const (
	RealtimeStatus    = 0x3F // '?'
	RealtimeSoftReset = 0x18 // Ctrl-X
	RealtimeEchoOn    = 0x0C
	RealtimeEchoOff   = 0x05
)

// Line terminator appended to every request
const lineTerminator = '\n'

// Acknowledgement lines
const (
	ackOK       = "ok"
	ackErrorTag = "error:"
)

// Lines starting with one of these are push messages
var PushPrefixes = []string{"FILE:", "VER:", "JSON:"}

// Boot banner fragments printed by the ESP32 ROM on every reset
var bootMarkers = []string{"SPI_FAST_FLASH_BOOT", "rst:"}
