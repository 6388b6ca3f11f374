// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xmodem

import (
	"context"
	"fmt"
	"time"
)

const opUpload = "upload"

// Send transmits data to a receiver that is about to request CRC mode.
// Any failure is reported as a *TransferError.
func (t *Transfer) Send(ctx context.Context, data []byte) error {
	defer t.stats.Finish()

	if err := t.sendTransfer(ctx, data); err != nil {
		if ctx.Err() != nil {
			t.abort()
		}
		t.log.Warn().Err(err).Msg("xmodem: upload failed")
		return &TransferError{Op: opUpload, Err: err}
	}
	return nil
}

func (t *Transfer) sendTransfer(ctx context.Context, data []byte) error {
	if err := t.waitForHandshake(ctx); err != nil {
		return err
	}

	blocks := SplitBlocks(data)
	seq := byte(1)
	for i, block := range blocks {
		packet, err := BuildPacket(seq, block)
		if err != nil {
			return err
		}
		if err := t.sendPacket(ctx, packet, i+1); err != nil {
			return err
		}

		sent := (i + 1) * BlockSize
		if sent > len(data) {
			sent = len(data)
		}
		t.stats.Bytes = uint64(sent)
		t.report(opUpload, i+1, sent, len(data))
		seq++
	}

	return t.sendEOT(ctx)
}

// waitForHandshake waits for the receiver's 'C'. Stray bytes do not extend
// the wait past StartAttempts*StartRetryDelay.
func (t *Transfer) waitForHandshake(ctx context.Context) error {
	deadline := time.Now().Add(time.Duration(t.cfg.StartAttempts) * t.cfg.StartRetryDelay)
	for attempt := 1; attempt <= t.cfg.StartAttempts; {
		wait := time.Until(deadline)
		if wait <= 0 {
			break
		}
		if wait > t.cfg.StartRetryDelay {
			wait = t.cfg.StartRetryDelay
		}

		b, err := t.readByte(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.log.Debug().Int("attempt", attempt).Msg("xmodem: waiting for receiver")
			attempt++
			continue
		}

		switch b {
		case CRCReq:
			// Receivers repeat 'C' until the first block arrives
			t.purge(ctx)
			t.log.Debug().Msg("xmodem: receiver requested CRC mode")
			return nil
		case CAN:
			return NewError(ErrCancelled, "receiver cancelled before start")
		case NAK:
			return NewError(ErrCouldNotStart, "receiver requested checksum mode")
		}
	}
	return NewError(ErrCouldNotStart, fmt.Sprintf("no handshake after %d attempts", t.cfg.StartAttempts))
}

// sendPacket writes packet until it is acknowledged
func (t *Transfer) sendPacket(ctx context.Context, packet []byte, block int) error {
	errCount := 0
	for {
		if _, err := t.ch.Write(packet); err != nil {
			return fmt.Errorf("write block %d: %w", block, err)
		}
		t.stats.PacketsSent++

		var failure error
		reply, err := t.readByte(ctx, t.cfg.ReadTimeout)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failure = err
		case reply == ACK:
			return nil
		case reply == CAN:
			return NewError(ErrCancelled, fmt.Sprintf("receiver cancelled at block %d", block))
		case reply == NAK || reply == CRCReq:
			t.stats.NAKsReceived++
			failure = NewError(ErrRejected, fmt.Sprintf("block %d", block))
		default:
			failure = NewError(ErrUnexpected, fmt.Sprintf("0x%02X after block %d", reply, block))
		}

		t.stats.RecordError(failure)
		errCount++
		if errCount > t.cfg.MaxErrors {
			return &Error{Kind: ErrTooManyErrors, Message: fmt.Sprintf("block %d", block), Err: failure}
		}

		t.log.Debug().Err(failure).Int("block", block).Int("errors", errCount).Msg("xmodem: resending block")
		t.purge(ctx)
		t.stats.Retransmits++
	}
}

// sendEOT ends the transfer and waits for the final ACK
func (t *Transfer) sendEOT(ctx context.Context) error {
	for attempt := 0; attempt <= t.cfg.MaxErrors; attempt++ {
		if err := t.writeByte(EOT); err != nil {
			return fmt.Errorf("write EOT: %w", err)
		}

		reply, err := t.readByte(ctx, t.cfg.ReadTimeout)
		if err == nil {
			switch reply {
			case ACK:
				t.log.Debug().Msg("xmodem: upload complete")
				return nil
			case CAN:
				return NewError(ErrCancelled, "receiver cancelled at EOT")
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := sleep(ctx, t.cfg.EOTDelay); err != nil {
			return err
		}
	}
	return NewError(ErrTooManyErrors, "EOT not acknowledged")
}
