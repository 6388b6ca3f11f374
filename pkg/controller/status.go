// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

// Status is the session's view of the device
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusUnknownDevice
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusUnknownDevice:
		return "UNKNOWN_DEVICE"
	default:
		return "INVALID"
	}
}

var statusTransitions = map[Status][]Status{
	StatusDisconnected:  {StatusConnecting},
	StatusConnecting:    {StatusConnected, StatusUnknownDevice, StatusDisconnected},
	StatusConnected:     {StatusDisconnected},
	StatusUnknownDevice: {StatusDisconnected},
}

func canTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Mode selects how incoming bytes are consumed
type Mode int

const (
	// LineMode splits input into lines for the command queue
	LineMode Mode = iota

	// BlockMode hands raw input to a file transfer
	BlockMode
)

func (m Mode) String() string {
	if m == BlockMode {
		return "block"
	}
	return "line"
}
