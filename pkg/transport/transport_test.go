// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// ============================================================
// WebSocket Tests
// ============================================================

// newEchoServer upgrades every request and echoes frames back as text
func newEchoServer(t *testing.T, authHeader chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authHeader != nil {
			select {
			case authHeader <- r.Header.Get("Authorization"):
			default:
			}
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestNewWebSocket_RejectsScheme(t *testing.T) {
	tests := []string{"http://host/", "tcp://host:81", "::bad"}
	for _, u := range tests {
		t.Run(u, func(t *testing.T) {
			if _, err := NewWebSocket(u, WebSocketOptions{}, zerolog.Nop()); err == nil {
				t.Errorf("expected error for %q", u)
			}
		})
	}
}

func TestWebSocket_RoundTrip(t *testing.T) {
	authCh := make(chan string, 1)
	server := newEchoServer(t, authCh)
	defer server.Close()

	ws, err := NewWebSocket(wsURL(server), WebSocketOptions{Username: "admin", Password: "secret"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWebSocket: %v", err)
	}

	received := make(chan []byte, 4)
	ws.SetReader(func(data []byte) { received <- data })

	if err := ws.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ws.Close()

	if !ws.IsOpen() {
		t.Fatal("IsOpen() = false after Open")
	}
	if auth := <-authCh; auth != "Basic YWRtaW46c2VjcmV0" {
		t.Errorf("Authorization = %q", auth)
	}

	if _, err := ws.Write([]byte("$I\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "$I\n" {
			t.Errorf("echo = %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestWebSocket_SignalsUnsupported(t *testing.T) {
	ws, err := NewWebSocket("ws://fluidnc.local:81/", WebSocketOptions{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWebSocket: %v", err)
	}
	if err := ws.SetDTR(false); !errors.Is(err, ErrSignalsUnsupported) {
		t.Errorf("SetDTR error = %v", err)
	}
	if err := ws.SetRTS(true); !errors.Is(err, ErrSignalsUnsupported) {
		t.Errorf("SetRTS error = %v", err)
	}
}

func TestWebSocket_WriteAfterClose(t *testing.T) {
	server := newEchoServer(t, nil)
	defer server.Close()

	ws, err := NewWebSocket(wsURL(server), WebSocketOptions{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWebSocket: %v", err)
	}
	if err := ws.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if ws.IsOpen() {
		t.Error("IsOpen() = true after Close")
	}
	if _, err := ws.Write([]byte("x")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write error = %v, want ErrNotOpen", err)
	}
}

// ============================================================
// Serial Tests
// ============================================================

func TestSerial_NotOpen(t *testing.T) {
	s := NewSerial("/dev/does-not-exist", 115200, zerolog.Nop())

	if s.IsOpen() {
		t.Error("IsOpen() = true before Open")
	}
	if _, err := s.Write([]byte("?")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write error = %v, want ErrNotOpen", err)
	}
	if err := s.SetDTR(true); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SetDTR error = %v, want ErrNotOpen", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on unopened port = %v", err)
	}
	if got := s.String(); got != "Serial: /dev/does-not-exist @ 115200 baud" {
		t.Errorf("String() = %q", got)
	}
}

func TestSerial_OpenMissingPort(t *testing.T) {
	s := NewSerial("/dev/does-not-exist", 115200, zerolog.Nop())
	if err := s.Open(); err == nil {
		s.Close()
		t.Fatal("expected error opening a missing port")
	}
}

// fakePort is a serial.Port whose reads come from a channel. Closing
// reads ends them with err.
type fakePort struct {
	reads chan []byte
	err   error

	mu     sync.Mutex
	closed bool
}

func newFakePort(err error) *fakePort {
	return &fakePort{reads: make(chan []byte, 8), err: err}
}

func (p *fakePort) Read(b []byte) (int, error) {
	data, ok := <-p.reads
	if !ok {
		return 0, p.err
	}
	return copy(b, data), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePort) SetMode(*serial.Mode) error  { return nil }
func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakePort) Drain() error                { return nil }
func (p *fakePort) ResetInputBuffer() error     { return nil }
func (p *fakePort) ResetOutputBuffer() error    { return nil }
func (p *fakePort) SetDTR(bool) error           { return nil }
func (p *fakePort) SetRTS(bool) error           { return nil }
func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}
func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }
func (p *fakePort) Break(time.Duration) error          { return nil }

func TestSerial_ReadFailureClosesPort(t *testing.T) {
	s := NewSerial("/dev/ttyUSB0", 115200, zerolog.Nop())
	got := make(chan []byte, 1)
	s.SetReader(func(data []byte) { got <- data })

	port := newFakePort(errors.New("device disconnected"))
	s.mu.Lock()
	s.attach(port)
	s.mu.Unlock()

	port.reads <- []byte("ok\n")
	select {
	case data := <-got:
		if string(data) != "ok\n" {
			t.Errorf("reader got %q", data)
		}
	case <-time.After(time.Second):
		t.Fatal("no data delivered")
	}
	if !s.IsOpen() {
		t.Fatal("IsOpen() = false while the port is readable")
	}

	close(port.reads)

	deadline := time.Now().Add(time.Second)
	for (s.IsOpen() || !port.isClosed()) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.IsOpen() {
		t.Fatal("IsOpen() = true after the read loop failed")
	}
	if !port.isClosed() {
		t.Error("failed port was not closed")
	}
	if _, err := s.Write([]byte("?")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Write error = %v, want ErrNotOpen", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after read failure = %v", err)
	}
}

func TestPortInfo_Vendor(t *testing.T) {
	tests := []struct {
		vid  string
		want string
	}{
		{"10c4", "Silicon Labs CP210x"},
		{"1A86", "WCH CH34x"},
		{"ffff", ""},
	}
	for _, tt := range tests {
		if got := (PortInfo{VID: tt.vid}).Vendor(); got != tt.want {
			t.Errorf("Vendor(%q) = %q, want %q", tt.vid, got, tt.want)
		}
	}
}
