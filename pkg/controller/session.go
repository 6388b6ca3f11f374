// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/fluidctl/pkg/transport"
)

// Session drives one controller over one transport. Commands run one at a
// time: Send, transfers and restarts queue behind each other.
type Session struct {
	t             transport.Transport
	timings       Timings
	log           zerolog.Logger
	unsolicited   func(line string)
	statusChanged func(from, to Status)

	connMu sync.Mutex    // serializes Connect and Disconnect
	flight chan struct{} // single in-flight operation

	mu      sync.Mutex
	status  Status
	mode    Mode
	lineBuf []byte
	queue   []Command
	block   *blockPort
}

// New binds a session to t. The transport is opened by Connect.
func New(t transport.Transport, opts ...Option) *Session {
	s := &Session{
		t:       t,
		timings: DefaultTimings(),
		log:     zerolog.Nop(),
		flight:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	t.SetReader(s.onData)
	return s
}

// Transport returns the underlying transport
func (s *Session) Transport() transport.Transport {
	return s.t
}

func (s *Session) Timings() Timings {
	return s.timings
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// OnUnsolicited replaces the handler for lines no command is waiting for
func (s *Session) OnUnsolicited(fn func(line string)) {
	s.mu.Lock()
	s.unsolicited = fn
	s.mu.Unlock()
}

// OnStatusChange replaces the status transition observer
func (s *Session) OnStatusChange(fn func(from, to Status)) {
	s.mu.Lock()
	s.statusChanged = fn
	s.mu.Unlock()
}

func (s *Session) setStatus(to Status) bool {
	s.mu.Lock()
	from := s.status
	if from == to {
		s.mu.Unlock()
		return true
	}
	if !canTransition(from, to) {
		s.mu.Unlock()
		s.log.Warn().Stringer("from", from).Stringer("to", to).Msg("Invalid status transition")
		return false
	}
	s.status = to
	fn := s.statusChanged
	s.mu.Unlock()

	s.log.Debug().Stringer("from", from).Stringer("to", to).Msg("Status changed")
	if fn != nil {
		fn(from, to)
	}
	return true
}

// ============================================================
// Connection lifecycle
// ============================================================

// Connect opens the transport and checks a controller answers status
// probes. If it stays silent the board is hard reset and probed once more.
// A device that never answers leaves the session UNKNOWN_DEVICE with a nil
// error; only transport and context failures are returned.
func (s *Session) Connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	switch s.Status() {
	case StatusConnected, StatusUnknownDevice:
		if s.t.IsOpen() {
			return nil
		}
		s.setStatus(StatusDisconnected)
	}
	s.setStatus(StatusConnecting)

	if !s.t.IsOpen() {
		if err := s.t.Open(); err != nil {
			s.setStatus(StatusDisconnected)
			return fmt.Errorf("open %s: %w", s.t, err)
		}
	}
	s.log.Info().Str("transport", s.t.String()).Msg("Transport open, probing controller")

	if err := sleepCtx(ctx, s.timings.ConnectSettle); err != nil {
		s.abortConnect()
		return err
	}

	found, err := s.probe(ctx)
	if err != nil {
		s.abortConnect()
		return err
	}
	if !found {
		s.log.Warn().Msg("No answer to status probes, resetting board")
		if err := s.HardReset(ctx); err != nil {
			if ctx.Err() != nil {
				s.abortConnect()
				return ctx.Err()
			}
			s.log.Warn().Err(err).Msg("Hard reset failed")
		}
		if found, err = s.probe(ctx); err != nil {
			s.abortConnect()
			return err
		}
	}

	if !found {
		s.log.Warn().Msg("Device did not answer, unknown device")
		s.setStatus(StatusUnknownDevice)
		return nil
	}
	s.log.Info().Msg("Controller connected")
	s.setStatus(StatusConnected)
	return nil
}

func (s *Session) abortConnect() {
	if err := s.t.Close(); err != nil {
		s.log.Debug().Err(err).Msg("Close after failed connect")
	}
	s.setStatus(StatusDisconnected)
}

// probe sends up to ProbeAttempts status requests
func (s *Session) probe(ctx context.Context) (bool, error) {
	for attempt := 1; attempt <= s.timings.ProbeAttempts; attempt++ {
		err := s.Send(ctx, NewStatusCommand(), s.timings.ProbeTimeout)
		if err == nil {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.log.Debug().Int("attempt", attempt).Err(err).Msg("Status probe unanswered")
	}
	return false, nil
}

// Disconnect closes the transport and fails pending commands
func (s *Session) Disconnect() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.lineBuf = nil
	s.mu.Unlock()
	for _, cmd := range pending {
		cmd.OnError(ErrDisconnected)
	}

	err := s.t.Close()
	s.setStatus(StatusDisconnected)
	if err != nil {
		return fmt.Errorf("close %s: %w", s.t, err)
	}
	return nil
}

// ============================================================
// Commands
// ============================================================

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.flight <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.flight
}

// Send writes cmd and waits for it to complete. A timeout of zero waits
// until ctx is done. On timeout the command is dropped from the queue,
// left TIMED_OUT, and ErrTimeout is returned; late lines become unsolicited.
// An "error:N" acknowledgement is returned as *FirmwareError.
func (s *Session) Send(ctx context.Context, cmd Command, timeout time.Duration) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	if err := s.enqueue(cmd); err != nil {
		return err
	}
	if err := s.writeRequest(cmd); err != nil {
		return err
	}
	return s.await(ctx, cmd, timeout)
}

// SendLine runs a raw line and returns its output
func (s *Session) SendLine(ctx context.Context, line string, timeout time.Duration) ([]string, error) {
	cmd := NewRawCommand(line)
	err := s.Send(ctx, cmd, timeout)
	return cmd.Output(), err
}

// SendRealtime writes one control byte immediately, bypassing the queue
func (s *Session) SendRealtime(b byte) error {
	if !s.t.IsOpen() {
		return ErrNotConnected
	}
	if s.Mode() == BlockMode {
		return ErrTransferActive
	}
	if _, err := s.t.Write([]byte{b}); err != nil {
		return fmt.Errorf("write realtime 0x%02X: %w", b, err)
	}
	return nil
}

func (s *Session) enqueue(cmd Command) error {
	if !s.t.IsOpen() {
		return ErrNotConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == BlockMode {
		return ErrTransferActive
	}
	s.queue = append(s.queue, cmd)
	return nil
}

func (s *Session) writeRequest(cmd Command) error {
	req := cmd.Request()
	if len(req) > 0 {
		payload := req
		if !cmd.Realtime() {
			payload = append(append(make([]byte, 0, len(req)+1), req...), lineTerminator)
		}
		s.log.Trace().Str("command", describe(cmd)).Msg("Send")
		if _, err := s.t.Write(payload); err != nil {
			s.remove(cmd)
			cmd.OnError(err)
			s.log.Error().Err(err).Str("command", describe(cmd)).Msg("Write failed")
			return fmt.Errorf("write %s: %w", describe(cmd), err)
		}
	}
	cmd.markSent()
	return nil
}

func (s *Session) await(ctx context.Context, cmd Command, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-cmd.Done():
		return cmd.Err()
	case <-expired:
		s.remove(cmd)
		if !cmd.markTimedOut() {
			return cmd.Err()
		}
		s.log.Debug().Str("command", describe(cmd)).Dur("timeout", timeout).Msg("Command timed out")
		return fmt.Errorf("%s: %w after %v", describe(cmd), ErrTimeout, timeout)
	case <-ctx.Done():
		s.remove(cmd)
		if !cmd.markTimedOut() {
			return cmd.Err()
		}
		return ctx.Err()
	}
}

func (s *Session) remove(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.queue {
		if c == cmd {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// ============================================================
// Input routing
// ============================================================

func (s *Session) onData(data []byte) {
	s.mu.Lock()
	if s.mode == BlockMode {
		port := s.block
		s.mu.Unlock()
		port.push(data)
		return
	}
	for _, b := range data {
		if b != '\r' {
			s.lineBuf = append(s.lineBuf, b)
		}
	}
	var lines []string
	for {
		idx := bytes.IndexByte(s.lineBuf, lineTerminator)
		if idx < 0 {
			break
		}
		if idx > 0 {
			lines = append(lines, string(s.lineBuf[:idx]))
		}
		s.lineBuf = s.lineBuf[idx+1:]
	}
	s.mu.Unlock()

	for _, line := range lines {
		s.route(line)
	}
}

// route delivers line to the head command, or to the unsolicited handler.
// A head that finished before taking the line is dropped and the line
// offered to whatever comes next.
func (s *Session) route(line string) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			fn := s.unsolicited
			s.mu.Unlock()
			s.log.Trace().Str("line", line).Msg("Unsolicited")
			if fn != nil {
				fn(line)
			}
			return
		}
		head := s.queue[0]
		s.mu.Unlock()

		s.log.Trace().Str("line", line).Str("command", describe(head)).Msg("Receive")
		consumed := head.AppendLine(line)

		if st := head.State(); st == StateDone || st == StateTimedOut {
			s.mu.Lock()
			if len(s.queue) > 0 && s.queue[0] == head {
				s.queue = s.queue[1:]
			}
			s.mu.Unlock()
		}
		if consumed {
			return
		}
	}
}

// ============================================================
// Reset and boot
// ============================================================

// HardReset pulses the board's reset through DTR and RTS
func (s *Session) HardReset(ctx context.Context) error {
	s.log.Info().Msg("Hard resetting board")
	if err := s.t.SetDTR(false); err != nil {
		return fmt.Errorf("hard reset: %w", err)
	}
	if err := s.t.SetRTS(true); err != nil {
		return fmt.Errorf("hard reset: %w", err)
	}
	if err := sleepCtx(ctx, s.timings.ResetLowHold); err != nil {
		return err
	}
	if err := s.t.SetDTR(true); err != nil {
		return fmt.Errorf("hard reset: %w", err)
	}
	return sleepCtx(ctx, s.timings.ResetHighHold)
}

// WaitForWelcome listens for the boot banner without sending anything
func (s *Session) WaitForWelcome(ctx context.Context, timeout time.Duration) (Welcome, error) {
	cmd := NewWelcomeCommand(s.timings.ResetLoopThreshold)
	err := s.Send(ctx, cmd, timeout)
	return cmd.Result(), err
}

// Restart hard resets the board and waits for it to boot. A board stuck
// rebooting is reported as WelcomeResetLoop with a nil error.
func (s *Session) Restart(ctx context.Context) (Welcome, error) {
	if err := s.acquire(ctx); err != nil {
		return Welcome{}, err
	}
	defer s.release()

	cmd := NewWelcomeCommand(s.timings.ResetLoopThreshold)
	if err := s.enqueue(cmd); err != nil {
		return Welcome{}, err
	}
	cmd.markSent()
	if err := s.HardReset(ctx); err != nil {
		s.remove(cmd)
		cmd.OnError(err)
		return Welcome{}, err
	}
	err := s.await(ctx, cmd, s.timings.WelcomeTimeout)
	result := cmd.Result()
	if result.Kind == WelcomeResetLoop {
		s.log.Error().Int("resets", result.Resets).Msg("Board is stuck in a reset loop")
	}
	return result, err
}

// Reboot asks the firmware to restart itself and waits for the banner
func (s *Session) Reboot(ctx context.Context) (Welcome, error) {
	cmd := NewRebootCommand(s.timings.ResetLoopThreshold)
	err := s.Send(ctx, cmd, s.timings.WelcomeTimeout)
	return cmd.Result(), err
}

// SoftReset sends Ctrl-X and waits for the banner
func (s *Session) SoftReset(ctx context.Context) (Welcome, error) {
	cmd := NewSoftResetCommand(s.timings.ResetLoopThreshold)
	err := s.Send(ctx, cmd, s.timings.WelcomeTimeout)
	return cmd.Result(), err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTimeout reports whether err is a command timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
