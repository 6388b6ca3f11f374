// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"context"
	"fmt"

	"github.com/Thermoquad/fluidctl/pkg/xmodem"
)

// enterBlockMode routes all input to a fresh block port
func (s *Session) enterBlockMode() (*blockPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == BlockMode {
		return nil, ErrTransferActive
	}
	s.block = newBlockPort(s.t)
	s.mode = BlockMode
	s.log.Debug().Msg("Entered block mode")
	return s.block, nil
}

// leaveBlockMode returns to line mode. Partial line input from before the
// transfer is discarded.
func (s *Session) leaveBlockMode(port *blockPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.block != port {
		return
	}
	if n := port.discard(); n > 0 {
		s.log.Debug().Int("bytes", n).Msg("Discarded trailing transfer input")
	}
	s.block = nil
	s.mode = LineMode
	s.lineBuf = nil
	s.log.Debug().Msg("Left block mode")
}

// prepareTransfer clears any alarm lock. A failure is logged, since an
// idle controller may still accept the transfer.
func (s *Session) prepareTransfer(ctx context.Context) {
	cmd := NewUnlockCommand()
	if err := s.enqueue(cmd); err != nil {
		s.log.Warn().Err(err).Msg("Unlock before transfer failed")
		return
	}
	if err := s.writeRequest(cmd); err != nil {
		s.log.Warn().Err(err).Msg("Unlock before transfer failed")
		return
	}
	if err := s.await(ctx, cmd, s.timings.CommandTimeout); err != nil {
		s.log.Warn().Err(err).Msg("Unlock before transfer failed")
	}
}

// armTransfer switches to block mode and writes the firmware's xmodem command
func (s *Session) armTransfer(ctx context.Context, request string) (*blockPort, error) {
	port, err := s.enterBlockMode()
	if err != nil {
		return nil, err
	}
	s.log.Debug().Str("request", request).Msg("Arming transfer")
	if _, err := s.t.Write([]byte(request + string(lineTerminator))); err != nil {
		s.leaveBlockMode(port)
		return nil, fmt.Errorf("write %s: %w", request, err)
	}
	if err := sleepCtx(ctx, s.timings.TransferSettle); err != nil {
		s.leaveBlockMode(port)
		return nil, err
	}
	return port, nil
}

func (s *Session) transferOptions(opts []xmodem.Option) []xmodem.Option {
	return append([]xmodem.Option{xmodem.WithLogger(s.log.With().Str("component", "xmodem").Logger())}, opts...)
}

// UploadFile stores data as name on the controller's local filesystem
func (s *Session) UploadFile(ctx context.Context, name string, data []byte, opts ...xmodem.Option) error {
	if !s.t.IsOpen() {
		return ErrNotConnected
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.prepareTransfer(ctx)
	port, err := s.armTransfer(ctx, "$Xmodem/Receive="+name)
	if err != nil {
		return err
	}
	defer s.leaveBlockMode(port)

	s.log.Info().Str("file", name).Int("bytes", len(data)).Msg("Uploading")
	if err := xmodem.New(port, s.transferOptions(opts)...).Send(ctx, data); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// DownloadFile fetches name from the controller's local filesystem
func (s *Session) DownloadFile(ctx context.Context, name string, opts ...xmodem.Option) ([]byte, error) {
	if !s.t.IsOpen() {
		return nil, ErrNotConnected
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	s.prepareTransfer(ctx)
	port, err := s.armTransfer(ctx, "$Xmodem/Send="+name)
	if err != nil {
		return nil, err
	}
	defer s.leaveBlockMode(port)

	// the sender stays silent until we ask, so anything buffered is chatter
	if n := port.discard(); n > 0 {
		s.log.Debug().Int("bytes", n).Msg("Dropped output before transfer start")
	}

	s.log.Info().Str("file", name).Msg("Downloading")
	data, err := xmodem.New(port, s.transferOptions(opts)...).Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return data, nil
}
