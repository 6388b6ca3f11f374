// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xmodem

import "fmt"

// PadBlock returns chunk padded with Filler to exactly BlockSize bytes.
// The input is never modified.
func PadBlock(chunk []byte) []byte {
	block := make([]byte, BlockSize)
	n := copy(block, chunk)
	for i := n; i < BlockSize; i++ {
		block[i] = Filler
	}
	return block
}

// SplitBlocks cuts data into padded BlockSize blocks
func SplitBlocks(data []byte) [][]byte {
	blocks := make([][]byte, 0, (len(data)+BlockSize-1)/BlockSize)
	for offset := 0; offset < len(data); offset += BlockSize {
		end := offset + BlockSize
		if end > len(data) {
			end = len(data)
		}
		blocks = append(blocks, PadBlock(data[offset:end]))
	}
	return blocks
}

// BuildPacket frames one block: STX, seq, 0xFF-seq, payload, CRC16
func BuildPacket(seq byte, block []byte) ([]byte, error) {
	if len(block) != BlockSize {
		return nil, fmt.Errorf("block must be %d bytes, got %d", BlockSize, len(block))
	}

	packet := make([]byte, 0, PacketSize)
	packet = append(packet, STX, seq, 0xFF-seq)
	packet = append(packet, block...)
	crc := EncodeCRC(CRC16(block))
	packet = append(packet, crc[0], crc[1])
	return packet, nil
}

// Packet is a parsed 1K frame
type Packet struct {
	Seq     byte
	Check   byte
	Payload []byte
	CRC     []byte
}

// ValidSeq reports whether the complement byte matches the sequence number
func (p *Packet) ValidSeq() bool {
	return p.Seq+p.Check == 0xFF
}

// ValidCRC reports whether the trailer matches the payload
func (p *Packet) ValidCRC() bool {
	return VerifyCRC(p.Payload, p.CRC)
}

// ParsePacket splits a raw frame into its fields without validating it.
// The frame must start with STX and be exactly PacketSize bytes.
func ParsePacket(frame []byte) (*Packet, error) {
	if len(frame) == 0 || frame[0] != STX {
		return nil, NewError(ErrMissingHeader, "frame does not start with STX")
	}
	if len(frame) != PacketSize {
		return nil, NewError(ErrMissingHeader, fmt.Sprintf("short frame: %d of %d bytes", len(frame), PacketSize))
	}
	return &Packet{
		Seq:     frame[1],
		Check:   frame[2],
		Payload: frame[HeaderSize : HeaderSize+BlockSize],
		CRC:     frame[HeaderSize+BlockSize:],
	}, nil
}

// TrimFiller removes the run of Filler bytes at the very end of data
func TrimFiller(data []byte) []byte {
	end := len(data)
	for end > 0 && data[end-1] == Filler {
		end--
	}
	return data[:end]
}
