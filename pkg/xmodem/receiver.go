// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xmodem

import (
	"context"
	"fmt"
)

const opDownload = "download"

// Receive requests CRC mode from a waiting sender and collects blocks until
// EOT. Trailing Filler bytes are trimmed from the result.
// Any failure is reported as a *TransferError.
func (t *Transfer) Receive(ctx context.Context) ([]byte, error) {
	defer t.stats.Finish()

	data, err := t.receiveTransfer(ctx)
	if err != nil {
		if ctx.Err() != nil {
			t.abort()
		}
		t.log.Warn().Err(err).Msg("xmodem: download failed")
		return nil, &TransferError{Op: opDownload, Err: err}
	}
	return data, nil
}

func (t *Transfer) receiveTransfer(ctx context.Context) ([]byte, error) {
	if err := t.requestStart(ctx); err != nil {
		return nil, err
	}

	var result []byte
	expected := byte(1)
	accepted := 0
	errCount := 0

	for {
		frame, err := t.readFrame(ctx)
		if err == nil {
			switch frame[0] {
			case EOT:
				if err := t.writeByte(ACK); err != nil {
					return nil, fmt.Errorf("write ACK: %w", err)
				}
				t.log.Debug().Int("blocks", accepted).Msg("xmodem: download complete")
				result = TrimFiller(result)
				t.stats.Bytes = uint64(len(result))
				return result, nil
			case CAN:
				return nil, NewError(ErrCancelled, fmt.Sprintf("sender cancelled after block %d", accepted))
			}

			var payload []byte
			payload, err = t.checkFrame(frame, expected, accepted > 0)
			if err == nil {
				t.stats.PacketsReceived++
				if err := t.writeByte(ACK); err != nil {
					return nil, fmt.Errorf("write ACK: %w", err)
				}
				if payload == nil {
					// Resend of a block whose ACK was lost
					t.stats.Duplicates++
					t.log.Debug().Uint8("seq", frame[1]).Msg("xmodem: duplicate block acknowledged")
					continue
				}

				result = append(result, payload...)
				accepted++
				expected++
				errCount = 0
				t.stats.Bytes = uint64(len(result))
				t.report(opDownload, accepted, len(result), 0)
				continue
			}
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		t.stats.RecordError(err)
		errCount++
		if errCount > t.cfg.MaxErrors {
			t.abort()
			return nil, &Error{Kind: ErrTooManyErrors, Message: fmt.Sprintf("block %d", accepted+1), Err: err}
		}

		t.log.Debug().Err(err).Int("block", accepted+1).Int("errors", errCount).Msg("xmodem: rejecting frame")
		t.purge(ctx)
		if err := t.writeByte(NAK); err != nil {
			return nil, fmt.Errorf("write NAK: %w", err)
		}
		t.stats.NAKsSent++
	}
}

// requestStart sends 'C' until the sender starts talking
func (t *Transfer) requestStart(ctx context.Context) error {
	for attempt := 1; attempt <= t.cfg.StartAttempts; attempt++ {
		if err := t.writeByte(CRCReq); err != nil {
			return fmt.Errorf("write handshake: %w", err)
		}

		ok, err := t.fill(ctx, t.cfg.StartRetryDelay)
		if err != nil {
			return err
		}
		if !ok {
			t.log.Debug().Int("attempt", attempt).Msg("xmodem: waiting for sender")
			continue
		}

		if t.pending[0] == CAN {
			return NewError(ErrCancelled, "sender cancelled before start")
		}
		return nil
	}
	return NewError(ErrCouldNotStart, fmt.Sprintf("no data after %d attempts", t.cfg.StartAttempts))
}

// checkFrame validates one STX frame. It returns the payload of a new block,
// or nil payload and nil error for a duplicate of the last accepted block.
func (t *Transfer) checkFrame(frame []byte, expected byte, haveLast bool) ([]byte, error) {
	packet, err := ParsePacket(frame)
	if err != nil {
		return nil, err
	}

	if haveLast && packet.Seq == expected-1 && packet.ValidSeq() {
		return nil, nil
	}
	if !packet.ValidSeq() || packet.Seq != expected {
		return nil, NewError(ErrBlockNumber, fmt.Sprintf("got %d (check 0x%02X), want %d", packet.Seq, packet.Check, expected))
	}
	if !packet.ValidCRC() {
		return nil, NewError(ErrChecksum, fmt.Sprintf("block %d", packet.Seq))
	}

	payload := make([]byte, BlockSize)
	copy(payload, packet.Payload)
	return payload, nil
}
