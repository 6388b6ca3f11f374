// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/fluidctl/pkg/transport"
	"github.com/Thermoquad/fluidctl/pkg/xmodem"
)

// ============================================================
// Fake Transport
// ============================================================

// fakeTransport emulates a controller on the far end of a serial link.
// Replies are delivered in order from a separate goroutine, the same way
// the real transports call their reader.
type fakeTransport struct {
	mu        sync.Mutex
	open      bool
	openErr   error
	writeErr  error
	reader    transport.Reader
	lineBuf   []byte
	writes    []string
	realtimes []byte
	signals   []string
	noSig     bool

	// emulated firmware behaviour
	onLine     func(line string)
	onRealtime func(b byte)
	onSignal   func(dtr, rts bool)
	dtr, rts   bool

	// set while a device-side transfer owns the link
	device *devicePort

	inbox chan []byte
	stop  chan struct{}
}

func newFakeTransport() *fakeTransport {
	f := &fakeTransport{
		inbox: make(chan []byte, 256),
		stop:  make(chan struct{}),
		dtr:   true,
	}
	go f.deliverLoop()
	return f
}

func (f *fakeTransport) deliverLoop() {
	for {
		select {
		case data := <-f.inbox:
			f.mu.Lock()
			r := f.reader
			f.mu.Unlock()
			if r != nil {
				r(data)
			}
		case <-f.stop:
			return
		}
	}
}

func (f *fakeTransport) shutdown() {
	close(f.stop)
}

// emit sends raw bytes to the host
func (f *fakeTransport) emit(data []byte) {
	f.inbox <- append([]byte(nil), data...)
}

// emitLines sends each line with a CRLF terminator
func (f *fakeTransport) emitLines(lines ...string) {
	for _, line := range lines {
		f.emit([]byte(line + "\r\n"))
	}
}

func (f *fakeTransport) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return 0, transport.ErrNotOpen
	}
	if f.writeErr != nil {
		f.mu.Unlock()
		return 0, f.writeErr
	}
	if dev := f.device; dev != nil {
		dev.push(p)
		f.mu.Unlock()
		return len(p), nil
	}
	var lines []string
	var realtime []byte
	for _, b := range p {
		switch b {
		case RealtimeStatus, RealtimeSoftReset, RealtimeEchoOn, RealtimeEchoOff:
			realtime = append(realtime, b)
		case '\n':
			lines = append(lines, string(f.lineBuf))
			f.lineBuf = nil
		case '\r':
		default:
			f.lineBuf = append(f.lineBuf, b)
		}
	}
	f.writes = append(f.writes, lines...)
	f.realtimes = append(f.realtimes, realtime...)
	onLine, onRealtime := f.onLine, f.onRealtime
	f.mu.Unlock()

	for _, b := range realtime {
		if onRealtime != nil {
			onRealtime(b)
		}
	}
	for _, line := range lines {
		if onLine != nil {
			onLine(line)
		}
	}
	return len(p), nil
}

func (f *fakeTransport) SetReader(r transport.Reader) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reader = r
}

func (f *fakeTransport) setSignal(name string, level bool) error {
	f.mu.Lock()
	if f.noSig {
		f.mu.Unlock()
		return transport.ErrSignalsUnsupported
	}
	if name == "DTR" {
		f.dtr = level
	} else {
		f.rts = level
	}
	state := "low"
	if level {
		state = "high"
	}
	f.signals = append(f.signals, name+" "+state)
	dtr, rts, fn := f.dtr, f.rts, f.onSignal
	f.mu.Unlock()
	if fn != nil {
		fn(dtr, rts)
	}
	return nil
}

func (f *fakeTransport) SetDTR(level bool) error { return f.setSignal("DTR", level) }
func (f *fakeTransport) SetRTS(level bool) error { return f.setSignal("RTS", level) }
func (f *fakeTransport) String() string          { return "fake" }

func (f *fakeTransport) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeTransport) realtimeCount(b byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rt := range f.realtimes {
		if rt == b {
			n++
		}
	}
	return n
}

func (f *fakeTransport) signalLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signals...)
}

// ============================================================
// Emulated firmware
// ============================================================

const idleStatus = "<Idle|MPos:0.000,0.000,0.000|FS:0,0>"

// fakeFirmware answers the commands a FluidNC board would
type fakeFirmware struct {
	t *testing.T
	f *fakeTransport

	mu       sync.Mutex
	silent   bool
	ignored  map[string]bool
	slow     bool
	busy     bool
	files    map[string][]byte
	settings map[string]string
}

func newFakeFirmware(t *testing.T) *fakeFirmware {
	t.Helper()
	fw := &fakeFirmware{
		t:        t,
		f:        newFakeTransport(),
		ignored:  map[string]bool{},
		files:    map[string][]byte{},
		settings: map[string]string{"Config/Filename": "config.yaml"},
	}
	fw.f.onLine = fw.handleLine
	fw.f.onRealtime = fw.handleRealtime
	t.Cleanup(fw.f.shutdown)
	return fw
}

func (fw *fakeFirmware) setSilent(silent bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.silent = silent
}

// ignore makes the firmware swallow line without replying
func (fw *fakeFirmware) ignore(line string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.ignored[line] = true
}

// setSlow delays plain acknowledgements and flags overlapping requests
func (fw *fakeFirmware) setSlow(slow bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.slow = slow
}

func (fw *fakeFirmware) isSilent() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.silent
}

func (fw *fakeFirmware) handleRealtime(b byte) {
	if fw.isSilent() {
		return
	}
	switch b {
	case RealtimeStatus:
		fw.f.emitLines(idleStatus)
	case RealtimeSoftReset:
		fw.f.emitLines("", "Grbl 3.7 [FluidNC v3.7.8 (noradio) '$' for help]")
	}
}

func (fw *fakeFirmware) handleLine(line string) {
	if fw.isSilent() {
		return
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.ignored[line] {
		return
	}
	if fw.busy {
		fw.t.Errorf("%q written before the previous request was answered", line)
	}

	switch {
	case line == "$X":
		fw.f.emitLines("[MSG:INFO: Caution: Unlocked]", "ok")
	case line == "$Build/Info":
		fw.f.emitLines("[VER:3.7 FluidNC v3.7.8:]", "[OPT:PHS]", "ok")
	case line == "$LocalFS/List":
		for name, data := range fw.files {
			fw.f.emitLines("[FILE: " + name + "|SIZE:" + strconv.Itoa(len(data)) + "]")
		}
		fw.f.emitLines("ok")
	case strings.HasPrefix(line, "$Xmodem/Receive="):
		fw.startReceive(strings.TrimPrefix(line, "$Xmodem/Receive="))
	case strings.HasPrefix(line, "$Xmodem/Send="):
		fw.startSend(strings.TrimPrefix(line, "$Xmodem/Send="))
	case len(line) > 1 && line[0] == '$':
		key, value, isSet := strings.Cut(line[1:], "=")
		if isSet {
			fw.settings[key] = value
			fw.f.emitLines("ok")
			return
		}
		if v, ok := fw.settings[key]; ok {
			fw.f.emitLines("$"+key+"="+v, "ok")
			return
		}
		fw.f.emitLines("error:3")
	case fw.slow:
		fw.busy = true
		go func() {
			time.Sleep(20 * time.Millisecond)
			fw.mu.Lock()
			fw.busy = false
			fw.mu.Unlock()
			fw.f.emitLines("ok")
		}()
	default:
		fw.f.emitLines("ok")
	}
}

func (fw *fakeFirmware) file(name string) ([]byte, bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	data, ok := fw.files[name]
	return data, ok
}

func (fw *fakeFirmware) deviceOptions() []xmodem.Option {
	return []xmodem.Option{
		xmodem.WithStart(20, 100*time.Millisecond),
		xmodem.WithReadTimeout(500 * time.Millisecond),
		xmodem.WithEOTDelay(time.Millisecond),
	}
}

// startReceive runs the device side of an upload. Called with fw.mu held.
func (fw *fakeFirmware) startReceive(name string) {
	dev := fw.attachDevice()
	go func() {
		data, err := xmodem.New(dev, fw.deviceOptions()...).Receive(context.Background())
		fw.detachDevice()
		if err != nil {
			fw.t.Logf("device receive: %v", err)
			return
		}
		fw.mu.Lock()
		fw.files[name] = data
		fw.mu.Unlock()
	}()
}

// startSend runs the device side of a download. Called with fw.mu held.
func (fw *fakeFirmware) startSend(name string) {
	data := fw.files[name]
	dev := fw.attachDevice()
	go func() {
		err := xmodem.New(dev, fw.deviceOptions()...).Send(context.Background(), data)
		fw.detachDevice()
		if err != nil {
			fw.t.Logf("device send: %v", err)
		}
	}()
}

func (fw *fakeFirmware) attachDevice() *devicePort {
	dev := &devicePort{f: fw.f, notify: make(chan struct{}, 1)}
	fw.f.mu.Lock()
	fw.f.device = dev
	fw.f.mu.Unlock()
	return dev
}

// detachDevice returns the link to line mode. Bytes the host wrote after
// the transfer finished are replayed as line input.
func (fw *fakeFirmware) detachDevice() {
	fw.f.mu.Lock()
	dev := fw.f.device
	fw.f.device = nil
	var leftover []byte
	if dev != nil {
		leftover = dev.take()
	}
	fw.f.mu.Unlock()
	if len(leftover) > 0 {
		_, _ = fw.f.Write(leftover)
	}
}

func (fw *fakeFirmware) attached() bool {
	fw.f.mu.Lock()
	defer fw.f.mu.Unlock()
	return fw.f.device != nil
}

// devicePort is the firmware's end of a transfer
type devicePort struct {
	f *fakeTransport

	mu     sync.Mutex
	buf    []byte
	notify chan struct{}
}

func (d *devicePort) push(p []byte) {
	d.mu.Lock()
	d.buf = append(d.buf, p...)
	d.mu.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *devicePort) Write(p []byte) (int, error) {
	d.f.emit(p)
	return len(p), nil
}

func (d *devicePort) take() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	data := d.buf
	d.buf = nil
	return data
}

func (d *devicePort) Read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.After(timeout)
	for {
		d.mu.Lock()
		if len(d.buf) > 0 {
			data := d.buf
			d.buf = nil
			d.mu.Unlock()
			return data, nil
		}
		d.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-d.notify:
		}
	}
}

func (d *devicePort) PeekByte() (byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.buf) == 0 {
		return 0, false
	}
	return d.buf[0], true
}

// ============================================================
// Helpers
// ============================================================

func testTimings() Timings {
	return Timings{
		ConnectSettle:      0,
		ProbeTimeout:       50 * time.Millisecond,
		ProbeAttempts:      3,
		ResetLowHold:       time.Millisecond,
		ResetHighHold:      time.Millisecond,
		TransferSettle:     20 * time.Millisecond,
		CommandTimeout:     500 * time.Millisecond,
		WelcomeTimeout:     500 * time.Millisecond,
		ResetLoopThreshold: 3,
	}
}

// hostOptions keep host-side transfers fast against the fake device
func hostOptions() []xmodem.Option {
	return []xmodem.Option{
		xmodem.WithStart(10, 200*time.Millisecond),
		xmodem.WithReadTimeout(500 * time.Millisecond),
		xmodem.WithEOTDelay(time.Millisecond),
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// connected returns a session already connected to fw
func connected(t *testing.T, fw *fakeFirmware, opts ...Option) *Session {
	t.Helper()
	s := New(fw.f, append([]Option{WithTimings(testTimings())}, opts...)...)
	if err := s.Connect(testContext(t)); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if s.Status() != StatusConnected {
		t.Fatalf("Status = %v, want CONNECTED", s.Status())
	}
	return s
}

// waitFor polls cond until it holds or a second passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")
