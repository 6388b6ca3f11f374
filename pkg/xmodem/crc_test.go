// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xmodem

import (
	"bytes"
	"testing"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCRC16_Empty(t *testing.T) {
	if crc := CRC16(nil); crc != 0x0000 {
		t.Errorf("CRC of empty data should be 0x0000, got 0x%04X", crc)
	}
}

func TestCRC16_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x31C3, // CRC-16/XMODEM check value
		},
		{
			name:     "single 0x01",
			data:     []byte{0x01},
			expected: 0x1021,
		},
		{
			name:     "ASCII 'A'",
			data:     []byte("A"),
			expected: 0x58E5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CRC16(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestCRC16_TableMatchesBitwise(t *testing.T) {
	bitwise := func(data []byte) uint16 {
		var crc uint16
		for _, b := range data {
			crc ^= uint16(b) << 8
			for i := 0; i < 8; i++ {
				if crc&0x8000 != 0 {
					crc = (crc << 1) ^ crcPolynomial
				} else {
					crc <<= 1
				}
			}
		}
		return crc
	}

	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		data := randomPayload(rng, rng.Intn(BlockSize+1))
		if got, want := CRC16(data), bitwise(data); got != want {
			t.Fatalf("round %d: table CRC 0x%04X, bitwise 0x%04X", i, got, want)
		}
	}
}

func TestEncodeCRC_ZeroPadded(t *testing.T) {
	enc := EncodeCRC(0x0012)
	if enc != [2]byte{0x00, 0x12} {
		t.Errorf("EncodeCRC(0x0012) = % X, want 00 12", enc)
	}
	enc = EncodeCRC(0x0000)
	if enc != [2]byte{0x00, 0x00} {
		t.Errorf("EncodeCRC(0x0000) = % X, want 00 00", enc)
	}
}

func TestVerifyCRC_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	for i := 0; i < getFuzzRounds(); i++ {
		data := randomPayload(rng, rng.Intn(BlockSize+1))
		crc := EncodeCRC(CRC16(data))
		if !VerifyCRC(data, crc[:]) {
			t.Fatalf("round %d: VerifyCRC failed for its own CRC (len=%d)", i, len(data))
		}
	}
}

func TestVerifyCRC_SingleBitFlips(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds() / 10
	if rounds < 3 {
		rounds = 3
	}

	for i := 0; i < rounds; i++ {
		data := randomPayload(rng, 1+rng.Intn(BlockSize))
		enc := EncodeCRC(CRC16(data))
		crc := enc[:]

		for bit := 0; bit < len(data)*8; bit++ {
			flipped := bytes.Clone(data)
			flipped[bit/8] ^= 1 << (bit % 8)
			if VerifyCRC(flipped, crc) {
				t.Fatalf("round %d: payload bit %d flip not detected", i, bit)
			}
		}

		for bit := 0; bit < CRCSize*8; bit++ {
			flipped := bytes.Clone(crc)
			flipped[bit/8] ^= 1 << (bit % 8)
			if VerifyCRC(data, flipped) {
				t.Fatalf("round %d: CRC bit %d flip not detected", i, bit)
			}
		}
	}
}

func TestVerifyCRC_WrongLength(t *testing.T) {
	if VerifyCRC([]byte("abc"), []byte{0x01}) {
		t.Error("VerifyCRC should reject a 1-byte trailer")
	}
}
