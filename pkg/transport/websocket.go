// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketOptions configures a WebSocket transport
type WebSocketOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool

	// HandshakeTimeout bounds the dial (default 10s)
	HandshakeTimeout time.Duration
}

// WebSocket is a Transport over the controller's WebUI socket.
// Text and binary frames are both delivered as bytes; writes go out as
// binary frames.
type WebSocket struct {
	url  string
	opts WebSocketOptions
	log  zerolog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	reader  Reader
}

// NewWebSocket creates a WebSocket transport. The socket is dialled by Open.
func NewWebSocket(wsURL string, opts WebSocketOptions, logger zerolog.Logger) (*WebSocket, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}

	return &WebSocket{url: wsURL, opts: opts, log: logger}, nil
}

// Open dials the socket with optional HTTP Basic auth
func (w *WebSocket) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: w.opts.HandshakeTimeout,
	}

	u, _ := url.Parse(w.url)
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: w.opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if w.opts.Username != "" && w.opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(w.opts.Username + ":" + w.opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.opts.HandshakeTimeout+5*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, w.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("WebSocket connection failed: %w", err)
	}

	w.conn = conn
	go w.readLoop(conn)

	w.log.Debug().Str("url", w.url).Msg("websocket connected")
	return nil
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			current := w.conn == conn
			if current {
				w.conn = nil
			}
			w.mu.Unlock()

			if current {
				w.log.Warn().Err(err).Str("url", w.url).Msg("websocket closed")
				conn.Close()
			}
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		w.mu.Lock()
		reader := w.reader
		w.mu.Unlock()
		if reader != nil && len(data) > 0 {
			reader(data)
		}
	}
}

// Close closes the socket
func (w *WebSocket) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsOpen reports whether the socket is connected
func (w *WebSocket) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

func (w *WebSocket) Write(p []byte) (int, error) {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return 0, ErrNotOpen
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return len(p), nil
}

// SetReader registers the callback for incoming bytes
func (w *WebSocket) SetReader(r Reader) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reader = r
}

// SetDTR is not available over a socket
func (w *WebSocket) SetDTR(bool) error {
	return ErrSignalsUnsupported
}

// SetRTS is not available over a socket
func (w *WebSocket) SetRTS(bool) error {
	return ErrSignalsUnsupported
}

func (w *WebSocket) String() string {
	return fmt.Sprintf("WebSocket: %s", w.url)
}
