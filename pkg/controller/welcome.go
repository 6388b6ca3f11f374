// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"fmt"
	"regexp"
	"strings"
)

// WelcomeKind is how a wait for the boot banner ended
type WelcomeKind int

const (
	WelcomePending WelcomeKind = iota
	WelcomeReceived
	WelcomeResetLoop
)

func (k WelcomeKind) String() string {
	switch k {
	case WelcomeReceived:
		return "welcome"
	case WelcomeResetLoop:
		return "reset loop"
	default:
		return "pending"
	}
}

// Welcome is the outcome of watching the firmware boot
type Welcome struct {
	Kind WelcomeKind

	// Set for WelcomeReceived
	Grbl     string
	Firmware string
	Release  string
	Build    string
	Line     string

	// Number of ROM boot banners seen
	Resets int
}

func (w Welcome) String() string {
	switch w.Kind {
	case WelcomeReceived:
		if w.Build != "" {
			return fmt.Sprintf("%s %s (%s)", w.Firmware, w.Release, w.Build)
		}
		return fmt.Sprintf("%s %s", w.Firmware, w.Release)
	case WelcomeResetLoop:
		return fmt.Sprintf("reset loop after %d resets", w.Resets)
	default:
		return "no welcome"
	}
}

// "Grbl 3.7 [FluidNC v3.7.8 (wifi) '$' for help]"
var fluidWelcome = regexp.MustCompile(`^Grbl\s+(\S+)\s+\[([A-Za-z]\w*)\s+(v?\d[\w.\-]*)(?:\s+\(([^)]*)\))?`)

// "Grbl 1.1h ['$' for help]"
var grblWelcome = regexp.MustCompile(`^Grbl\s+(\S+)\s+\[`)

// ParseWelcome matches a firmware boot banner
func ParseWelcome(line string) (Welcome, bool) {
	line = strings.TrimSpace(line)
	if m := fluidWelcome.FindStringSubmatch(line); m != nil {
		return Welcome{
			Kind:     WelcomeReceived,
			Grbl:     m[1],
			Firmware: m[2],
			Release:  m[3],
			Build:    m[4],
			Line:     line,
		}, true
	}
	if m := grblWelcome.FindStringSubmatch(line); m != nil {
		return Welcome{
			Kind:     WelcomeReceived,
			Grbl:     m[1],
			Firmware: "Grbl",
			Release:  m[1],
			Line:     line,
		}, true
	}
	return Welcome{}, false
}

// WelcomeCommand waits for the boot banner. It completes on the banner or
// once ROM reset output has been seen threshold times.
type WelcomeCommand struct {
	Base
	threshold int
	result    Welcome
}

// NewWelcomeCommand listens without writing anything
func NewWelcomeCommand(threshold int) *WelcomeCommand {
	c := &WelcomeCommand{threshold: threshold}
	c.Init(nil, false, Hooks{Text: c.onText, Tagged: c.onTagged})
	return c
}

// NewSoftResetCommand sends Ctrl-X and waits for the banner
func NewSoftResetCommand(threshold int) *WelcomeCommand {
	c := &WelcomeCommand{threshold: threshold}
	c.InitRealtime(RealtimeSoftReset, Hooks{Text: c.onText, Tagged: c.onTagged})
	return c
}

// NewRebootCommand asks the firmware to restart and waits for the banner
func NewRebootCommand(threshold int) *WelcomeCommand {
	c := &WelcomeCommand{threshold: threshold}
	c.Init([]byte("$Bye"), false, Hooks{Text: c.onText, Tagged: c.onTagged})
	return c
}

func (c *WelcomeCommand) onText(line string) {
	if w, ok := ParseWelcome(line); ok {
		c.mu.Lock()
		w.Resets = c.result.Resets
		c.result = w
		c.mu.Unlock()
		c.Complete()
		return
	}
	if !isBootBanner(line) {
		return
	}
	c.mu.Lock()
	c.result.Resets++
	looping := c.threshold > 0 && c.result.Resets >= c.threshold
	if looping {
		c.result.Kind = WelcomeResetLoop
	}
	c.mu.Unlock()
	if looping {
		c.Complete()
	}
}

// Boot output sometimes carries the banner inside a message tag
func (c *WelcomeCommand) onTagged(tag, value string) {
	if tag == "MSG" {
		c.onText(strings.TrimSpace(strings.TrimPrefix(value, "INFO:")))
	}
}

func (c *WelcomeCommand) Result() Welcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}
