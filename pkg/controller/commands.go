// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ============================================================
// Status report
// ============================================================

// MachineStatus is one parsed <State|Key:value|...> report
type MachineStatus struct {
	State    string
	SubState string
	Fields   map[string]string
}

// ParseMachineStatus parses a status report line
func ParseMachineStatus(line string) (MachineStatus, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<") || !strings.HasSuffix(line, ">") {
		return MachineStatus{}, fmt.Errorf("not a status report: %q", line)
	}
	parts := strings.Split(line[1:len(line)-1], "|")
	st := MachineStatus{Fields: make(map[string]string, len(parts)-1)}
	st.State, st.SubState, _ = strings.Cut(parts[0], ":")
	for _, part := range parts[1:] {
		key, value, _ := strings.Cut(part, ":")
		st.Fields[key] = value
	}
	return st, nil
}

// Position parses a comma separated axis field such as MPos or WCO
func (s MachineStatus) Position(field string) ([]float64, error) {
	raw, ok := s.Fields[field]
	if !ok {
		return nil, fmt.Errorf("status has no %s field", field)
	}
	axes := strings.Split(raw, ",")
	pos := make([]float64, len(axes))
	for i, axis := range axes {
		v, err := strconv.ParseFloat(axis, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s axis %d: %w", field, i, err)
		}
		pos[i] = v
	}
	return pos, nil
}

// StatusCommand sends the realtime '?' and completes on the status report.
// It doubles as the presence probe during connect.
type StatusCommand struct {
	Base
	status MachineStatus
}

func NewStatusCommand() *StatusCommand {
	c := &StatusCommand{}
	c.InitRealtime(RealtimeStatus, Hooks{Text: c.onText})
	return c
}

func (c *StatusCommand) onText(line string) {
	st, err := ParseMachineStatus(line)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
	c.Complete()
}

func (c *StatusCommand) Result() MachineStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ============================================================
// Build info
// ============================================================

// Version is the firmware build description from $Build/Info
type Version struct {
	Grbl     string
	Firmware string
	Release  string
	Name     string
	Options  []string
}

func (v Version) String() string {
	if v.Firmware == "" {
		return "Grbl " + v.Grbl
	}
	return fmt.Sprintf("%s %s (Grbl %s)", v.Firmware, v.Release, v.Grbl)
}

// parseVersion parses "3.7 FluidNC v3.7.8:machine"
func parseVersion(value string) Version {
	var v Version
	if idx := strings.LastIndex(value, ":"); idx >= 0 {
		v.Name = strings.TrimSpace(value[idx+1:])
		value = value[:idx]
	}
	fields := strings.Fields(value)
	if len(fields) > 0 {
		v.Grbl = fields[0]
	}
	if len(fields) > 1 {
		v.Firmware = fields[1]
	}
	if len(fields) > 2 {
		v.Release = fields[2]
	}
	return v
}

type VersionCommand struct {
	Base
	version Version
	seen    bool
}

func NewVersionCommand() *VersionCommand {
	c := &VersionCommand{}
	c.Init([]byte("$Build/Info"), true, Hooks{
		Tagged: c.onTagged,
		Push:   func(prefix, value string) { c.onTagged(prefix, value) },
	})
	return c
}

func (c *VersionCommand) onTagged(tag, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch tag {
	case "VER":
		opts := c.version.Options
		c.version = parseVersion(value)
		c.version.Options = opts
		c.seen = true
	case "OPT":
		for _, opt := range strings.Split(value, ",") {
			if opt = strings.TrimSpace(opt); opt != "" {
				c.version.Options = append(c.version.Options, opt)
			}
		}
	}
}

// Result returns the parsed version and whether a VER line was seen
func (c *VersionCommand) Result() (Version, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version, c.seen
}

// ============================================================
// Local filesystem
// ============================================================

// FileInfo is one entry of the controller's local filesystem
type FileInfo struct {
	Name string
	Size int64
}

// parseFileEntry parses "config.yaml|SIZE:2345"
func parseFileEntry(value string) (FileInfo, bool) {
	name, rest, _ := strings.Cut(strings.TrimSpace(value), "|")
	name = strings.TrimSpace(name)
	if name == "" {
		return FileInfo{}, false
	}
	fi := FileInfo{Name: name}
	if size, ok := strings.CutPrefix(strings.TrimSpace(rest), "SIZE:"); ok {
		fi.Size, _ = strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	}
	return fi, true
}

type jsonFileList struct {
	Files []struct {
		Name string          `json:"name"`
		Size json.RawMessage `json:"size"`
	} `json:"files"`
}

// jsonSize accepts sizes encoded as numbers or strings
func jsonSize(raw json.RawMessage) int64 {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, _ = strconv.ParseInt(s, 10, 64)
	}
	return n
}

// ListFilesCommand lists the local filesystem. Entries arrive as tagged
// FILE lines, FILE: pushes, or a JSON document split over JSON lines.
type ListFilesCommand struct {
	Base
	files   []FileInfo
	jsonBuf strings.Builder
	jsonErr error
}

func NewListFilesCommand() *ListFilesCommand {
	c := &ListFilesCommand{}
	c.Init([]byte("$LocalFS/List"), true, Hooks{
		Tagged: c.onEntry,
		Push:   c.onEntry,
		Text:   c.onText,
	})
	return c
}

func (c *ListFilesCommand) onEntry(tag, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch tag {
	case "FILE":
		if fi, ok := parseFileEntry(value); ok {
			c.files = append(c.files, fi)
		}
	case "JSON":
		c.jsonBuf.WriteString(value)
	}
}

func (c *ListFilesCommand) onText(line string) {
	if strings.TrimSpace(line) != ackOK {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jsonBuf.Len() == 0 {
		return
	}
	var list jsonFileList
	if err := json.Unmarshal([]byte(c.jsonBuf.String()), &list); err != nil {
		c.jsonErr = fmt.Errorf("parse file list: %w", err)
		return
	}
	for _, f := range list.Files {
		c.files = append(c.files, FileInfo{Name: f.Name, Size: jsonSize(f.Size)})
	}
}

func (c *ListFilesCommand) Result() ([]FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FileInfo(nil), c.files...), c.jsonErr
}

// NewDeleteFileCommand removes name from the local filesystem
func NewDeleteFileCommand(name string) *RawCommand {
	return NewRawCommand("$LocalFS/Delete=" + name)
}

// ============================================================
// Settings
// ============================================================

// GetSettingCommand reads one $-setting
type GetSettingCommand struct {
	Base
	name  string
	value string
	found bool
}

func NewGetSettingCommand(name string) *GetSettingCommand {
	name = strings.TrimPrefix(name, "$")
	c := &GetSettingCommand{name: name}
	c.Init([]byte("$"+name), true, Hooks{Text: c.onText})
	return c
}

// NewConfigFilenameCommand reads the active machine config file name
func NewConfigFilenameCommand() *GetSettingCommand {
	return NewGetSettingCommand("Config/Filename")
}

func (c *GetSettingCommand) onText(line string) {
	key, value, ok := strings.Cut(strings.TrimPrefix(strings.TrimSpace(line), "$"), "=")
	if !ok || !strings.EqualFold(key, c.name) {
		return
	}
	c.mu.Lock()
	c.value = value
	c.found = true
	c.mu.Unlock()
}

func (c *GetSettingCommand) Result() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.found
}

// NewSetSettingCommand writes one $-setting
func NewSetSettingCommand(name, value string) *RawCommand {
	return NewRawCommand("$" + strings.TrimPrefix(name, "$") + "=" + value)
}

// NewUnlockCommand clears an alarm lock
func NewUnlockCommand() *RawCommand {
	return NewRawCommand("$X")
}

// ============================================================
// Raw lines
// ============================================================

// RawCommand sends an arbitrary line and collects everything up to the
// acknowledgement
type RawCommand struct {
	Base
}

func NewRawCommand(line string) *RawCommand {
	c := &RawCommand{}
	c.Init([]byte(line), true, Hooks{})
	return c
}

// Output returns the response lines without the final acknowledgement
func (c *RawCommand) Output() []string {
	lines := c.Lines()
	if n := len(lines); n > 0 && c.State() == StateDone {
		last := strings.TrimSpace(lines[n-1])
		if _, isErr := parseErrorLine(last); last == ackOK || isErr {
			lines = lines[:n-1]
		}
	}
	return lines
}
