// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xmodem

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Channel is the raw byte stream a transfer runs over.
type Channel interface {
	// Write sends bytes to the peer
	Write(p []byte) (int, error)

	// Read waits up to timeout for input, then returns and clears everything
	// buffered so far. A timeout is reported as an empty result and nil error.
	Read(ctx context.Context, timeout time.Duration) ([]byte, error)

	// PeekByte returns the first buffered byte without consuming it
	PeekByte() (byte, bool)
}

// Transfer runs one XMODEM-1K send or receive over a Channel.
// A Transfer is not safe for concurrent use.
type Transfer struct {
	ch      Channel
	cfg     Config
	log     zerolog.Logger
	stats   *Statistics
	pending []byte // drained from ch but not yet consumed
}

// New creates a transfer bound to ch
func New(ch Channel, opts ...Option) *Transfer {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	stats := cfg.Stats
	if stats == nil {
		stats = NewStatistics()
	}

	return &Transfer{
		ch:    ch,
		cfg:   cfg,
		log:   cfg.Logger,
		stats: stats,
	}
}

// Stats returns the counters collected so far
func (t *Transfer) Stats() *Statistics {
	return t.stats
}

// fill moves whatever the channel has into pending, waiting up to timeout
func (t *Transfer) fill(ctx context.Context, timeout time.Duration) (bool, error) {
	data, err := t.ch.Read(ctx, timeout)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	t.pending = append(t.pending, data...)
	return true, nil
}

// readByte consumes one byte, waiting up to timeout for it
func (t *Transfer) readByte(ctx context.Context, timeout time.Duration) (byte, error) {
	if len(t.pending) == 0 {
		ok, err := t.fill(ctx, timeout)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, NewError(ErrTimeout, "no reply within "+timeout.String())
		}
	}
	b := t.pending[0]
	t.pending = t.pending[1:]
	return b, nil
}

// readFrame reads one receiver-side frame. Control bytes and stray bytes
// are returned alone; an STX frame is read until PacketSize bytes arrive.
func (t *Transfer) readFrame(ctx context.Context) ([]byte, error) {
	first, err := t.readByte(ctx, t.cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	if first != STX {
		return []byte{first}, nil
	}

	frame := make([]byte, 1, PacketSize)
	frame[0] = STX
	for len(frame) < PacketSize {
		if len(t.pending) == 0 {
			ok, err := t.fill(ctx, t.cfg.ReadTimeout)
			if err != nil {
				return nil, err
			}
			if !ok {
				return frame, NewError(ErrTimeout, "frame stalled")
			}
		}
		n := PacketSize - len(frame)
		if n > len(t.pending) {
			n = len(t.pending)
		}
		frame = append(frame, t.pending[:n]...)
		t.pending = t.pending[n:]
	}
	return frame, nil
}

// purge discards buffered input
func (t *Transfer) purge(ctx context.Context) {
	t.pending = t.pending[:0]
	for {
		if _, ok := t.ch.PeekByte(); !ok {
			return
		}
		if _, err := t.ch.Read(ctx, 0); err != nil {
			return
		}
	}
}

func (t *Transfer) writeByte(b byte) error {
	_, err := t.ch.Write([]byte{b})
	return err
}

// abort tells the peer to give up. Best effort.
func (t *Transfer) abort() {
	if _, err := t.ch.Write([]byte{CAN, CAN, CAN}); err != nil {
		t.log.Debug().Err(err).Msg("xmodem: failed to send CAN")
	}
}

func (t *Transfer) report(op string, block, bytes, total int) {
	if t.cfg.Progress != nil {
		t.cfg.Progress(Progress{Op: op, Block: block, Bytes: bytes, Total: total})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
