// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xmodem

import (
	"fmt"
	"time"
)

// Statistics tracks block counts and error rates for one transfer
type Statistics struct {
	StartTime time.Time
	EndTime   time.Time

	// Counters
	PacketsSent     uint64
	PacketsReceived uint64
	Retransmits     uint64
	NAKsSent        uint64
	NAKsReceived    uint64
	Duplicates      uint64
	ChecksumErrors  uint64
	HeaderErrors    uint64
	SequenceErrors  uint64
	Timeouts        uint64
	Bytes           uint64

	// Rate (calculated)
	ByteRate float64 // bytes/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// RecordError updates the counter matching a per-attempt protocol error
func (s *Statistics) RecordError(err error) {
	kind, ok := kindOf(err)
	if !ok {
		return
	}
	switch kind {
	case ErrChecksum:
		s.ChecksumErrors++
	case ErrMissingHeader:
		s.HeaderErrors++
	case ErrBlockNumber:
		s.SequenceErrors++
	case ErrDuplicate:
		s.Duplicates++
	case ErrTimeout:
		s.Timeouts++
	}
}

// Finish stamps the end time and calculates the byte rate
func (s *Statistics) Finish() {
	s.EndTime = time.Now()
	elapsed := s.Elapsed().Seconds()
	if elapsed > 0 {
		s.ByteRate = float64(s.Bytes) / elapsed
	}
}

// Elapsed returns the transfer duration so far
func (s *Statistics) Elapsed() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	result := fmt.Sprintf("=== Transfer (%.1f seconds) ===\n", s.Elapsed().Seconds())
	result += fmt.Sprintf("Bytes:           %8d\n", s.Bytes)

	if s.PacketsSent > 0 {
		result += fmt.Sprintf("Packets Sent:    %8d\n", s.PacketsSent)
	}
	if s.PacketsReceived > 0 {
		result += fmt.Sprintf("Packets Recv:    %8d\n", s.PacketsReceived)
	}
	if s.Retransmits > 0 {
		result += fmt.Sprintf("Retransmits:     %8d\n", s.Retransmits)
	}
	if s.NAKsSent > 0 || s.NAKsReceived > 0 {
		result += fmt.Sprintf("NAKs:            %8d sent, %d received\n", s.NAKsSent, s.NAKsReceived)
	}
	if s.Duplicates > 0 {
		result += fmt.Sprintf("Duplicates:      %8d\n", s.Duplicates)
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumErrors)
	}
	if s.HeaderErrors > 0 {
		result += fmt.Sprintf("Header Errors:   %8d\n", s.HeaderErrors)
	}
	if s.SequenceErrors > 0 {
		result += fmt.Sprintf("Sequence Errors: %8d\n", s.SequenceErrors)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}

	result += fmt.Sprintf("Rate:            %8.1f bytes/sec\n", s.ByteRate)
	result += "================================\n"

	return result
}
