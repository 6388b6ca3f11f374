// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"fmt"
	"strings"
	"sync"
)

// State is the lifecycle of a command
type State int

const (
	StateInitiated State = iota
	StateSent
	StateDone
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "INITIATED"
	case StateSent:
		return "SENT"
	case StateDone:
		return "DONE"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Hooks receive the lines routed to a command, after classification.
// Any hook may call Complete.
type Hooks struct {
	Tagged func(tag, value string)
	Push   func(prefix, value string)
	Text   func(line string)
}

// Command is one request/response exchange with the firmware.
// Concrete commands embed Base.
type Command interface {
	// Request is the line written to the firmware, without terminator.
	// An empty request writes nothing and only listens.
	Request() []byte

	// Realtime requests are a single control byte sent without terminator
	Realtime() bool

	// AppendLine delivers one response line. It reports false when the
	// command had already finished and the line was not consumed.
	AppendLine(line string) bool

	// OnError forces completion with err
	OnError(err error)

	// OnComplete registers fn to run once the command completes
	OnComplete(fn func())

	State() State
	Lines() []string
	Done() <-chan struct{}
	Err() error

	markSent()
	markTimedOut() bool
}

// Base holds the state shared by every command
type Base struct {
	request  []byte
	realtime bool
	hooks    Hooks
	waitAck  bool

	mu        sync.Mutex
	state     State
	lines     []string
	err       error
	done      chan struct{}
	listeners []func()
}

// Init prepares b. When waitAck is set, "ok" completes the command and
// "error:N" completes it with a *FirmwareError.
func (b *Base) Init(request []byte, waitAck bool, hooks Hooks) {
	b.request = request
	b.waitAck = waitAck
	b.hooks = hooks
	b.state = StateInitiated
	b.done = make(chan struct{})
}

// InitRealtime prepares b to send the single control byte rt
func (b *Base) InitRealtime(rt byte, hooks Hooks) {
	b.Init([]byte{rt}, false, hooks)
	b.realtime = true
}

func (b *Base) Realtime() bool {
	return b.realtime
}

func (b *Base) Request() []byte {
	return b.request
}

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Lines returns every line delivered so far
func (b *Base) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

func (b *Base) Done() <-chan struct{} {
	return b.done
}

// Err is the completion error, nil on success
func (b *Base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Base) OnComplete(fn func()) {
	b.mu.Lock()
	if b.state != StateDone {
		b.listeners = append(b.listeners, fn)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	fn()
}

func (b *Base) AppendLine(line string) bool {
	b.mu.Lock()
	if b.finished() {
		b.mu.Unlock()
		return false
	}
	b.lines = append(b.lines, line)
	b.mu.Unlock()

	kind, tag, value := ClassifyLine(line)
	switch kind {
	case LineTagged:
		if b.hooks.Tagged != nil {
			b.hooks.Tagged(tag, value)
		}
	case LinePush:
		if b.hooks.Push != nil {
			b.hooks.Push(tag, value)
		}
	default:
		if b.hooks.Text != nil {
			b.hooks.Text(line)
		}
	}

	if !b.waitAck || kind != LineText {
		return true
	}
	line = strings.TrimSpace(line)
	if line == ackOK {
		b.finish(nil)
	} else if code, ok := parseErrorLine(line); ok {
		b.finish(&FirmwareError{Code: code})
	}
	return true
}

// Complete marks the command DONE. Later calls are ignored.
func (b *Base) Complete() {
	b.finish(nil)
}

func (b *Base) OnError(err error) {
	b.finish(err)
}

func (b *Base) finished() bool {
	return b.state == StateDone || b.state == StateTimedOut
}

func (b *Base) finish(err error) bool {
	b.mu.Lock()
	if b.finished() {
		b.mu.Unlock()
		return false
	}
	b.state = StateDone
	b.err = err
	listeners := b.listeners
	b.listeners = nil
	close(b.done)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return true
}

func (b *Base) markSent() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateInitiated {
		b.state = StateSent
	}
}

// markTimedOut reports false if the command completed first
func (b *Base) markTimedOut() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished() {
		return false
	}
	b.state = StateTimedOut
	return true
}

// describe names a command in logs
func describe(c Command) string {
	req := c.Request()
	if len(req) == 0 {
		return "(listen)"
	}
	if c.Realtime() {
		return fmt.Sprintf("realtime 0x%02X", req[0])
	}
	return string(req)
}
