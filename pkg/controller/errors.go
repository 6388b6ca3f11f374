// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a command gets no complete response in time
var ErrTimeout = errors.New("command timed out")

// ErrNotConnected is returned when the transport is not open
var ErrNotConnected = errors.New("not connected")

// ErrTransferActive is returned for line traffic attempted during a file transfer
var ErrTransferActive = errors.New("file transfer in progress")

// ErrDisconnected fails commands still pending when the session disconnects
var ErrDisconnected = errors.New("session disconnected")

// FirmwareError is an "error:N" acknowledgement
type FirmwareError struct {
	Code int
}

// Classic Grbl error codes, shared by FluidNC
var firmwareErrors = map[int]string{
	1:  "expected command letter",
	2:  "bad number format",
	3:  "invalid statement",
	4:  "negative value",
	5:  "setting disabled",
	6:  "step pulse too short",
	7:  "settings read failed",
	8:  "not idle",
	9:  "g-code locked out during alarm or jog",
	10: "soft limits require homing",
	11: "line overflow",
	12: "step rate too high",
	13: "safety door open",
	14: "line length exceeded",
	15: "jog travel exceeded",
	16: "invalid jog command",
	17: "laser mode requires PWM output",
	20: "unsupported command",
}

func (e *FirmwareError) Error() string {
	if desc, ok := firmwareErrors[e.Code]; ok {
		return fmt.Sprintf("firmware error:%d (%s)", e.Code, desc)
	}
	return fmt.Sprintf("firmware error:%d", e.Code)
}
