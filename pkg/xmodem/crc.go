// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xmodem

const crcPolynomial = 0x1021

// crcTable is filled once at package init and never written afterwards.
var crcTable = makeCRCTable()

func makeCRCTable() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

// CRC16 computes the CRC-16/XMODEM checksum (poly 0x1021, init 0x0000)
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// EncodeCRC returns the two wire bytes of a CRC, high byte first
func EncodeCRC(crc uint16) [CRCSize]byte {
	return [CRCSize]byte{byte(crc >> 8), byte(crc & 0xFF)}
}

// VerifyCRC reports whether trailer holds the CRC16 of data
func VerifyCRC(data []byte, trailer []byte) bool {
	if len(trailer) != CRCSize {
		return false
	}
	want := EncodeCRC(CRC16(data))
	return trailer[0] == want[0] && trailer[1] == want[1]
}
