// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xmodem

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes transfer errors
type ErrorKind int

const (
	// ErrMissingHeader indicates a frame that did not start with STX
	ErrMissingHeader ErrorKind = iota

	// ErrBlockNumber indicates an unexpected sequence number or a bad complement
	ErrBlockNumber

	// ErrDuplicate indicates a resend of the last accepted block
	ErrDuplicate

	// ErrChecksum indicates a CRC16 mismatch
	ErrChecksum

	// ErrTimeout indicates the peer stayed silent
	ErrTimeout

	// ErrCancelled indicates the peer sent CAN
	ErrCancelled

	// ErrCouldNotStart indicates the handshake never completed
	ErrCouldNotStart

	// ErrTooManyErrors indicates the retry bound was exceeded
	ErrTooManyErrors

	// ErrRejected indicates the receiver answered a block with NAK
	ErrRejected

	// ErrUnexpected indicates a reply byte that has no meaning at this point
	ErrUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case ErrMissingHeader:
		return "missing header"
	case ErrBlockNumber:
		return "wrong block number"
	case ErrDuplicate:
		return "duplicate block"
	case ErrChecksum:
		return "checksum error"
	case ErrTimeout:
		return "timeout"
	case ErrCancelled:
		return "cancelled"
	case ErrCouldNotStart:
		return "could not start"
	case ErrTooManyErrors:
		return "too many errors"
	case ErrRejected:
		return "rejected by receiver"
	case ErrUnexpected:
		return "unexpected reply"
	default:
		return "unknown error"
	}
}

// Error is a protocol-level transfer error
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a new protocol error
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TransferError is the single failure reported for a whole transfer
type TransferError struct {
	Op  string // "download" or "upload"
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("could not %s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func kindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// hasKind walks every *Error in the chain looking for kind
func hasKind(err error, kind ErrorKind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsCancelled reports whether err was caused by the peer sending CAN
func IsCancelled(err error) bool {
	return hasKind(err, ErrCancelled)
}

// IsChecksum reports whether err involves a CRC mismatch
func IsChecksum(err error) bool {
	return hasKind(err, ErrChecksum)
}

// IsTooManyErrors reports whether the retry bound was exceeded
func IsTooManyErrors(err error) bool {
	return hasKind(err, ErrTooManyErrors)
}
