// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xmodem

import (
	"context"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"
)

// ============================================================
// Test Channels
// ============================================================

// scriptChannel feeds the engine scripted replies. respond is called for
// every write and its result becomes readable input.
type scriptChannel struct {
	mu      sync.Mutex
	in      []byte
	writes  [][]byte
	respond func(written []byte) []byte
}

func newScriptChannel(respond func([]byte) []byte) *scriptChannel {
	return &scriptChannel{respond: respond}
}

func (c *scriptChannel) feed(b ...byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, b...)
}

func (c *scriptChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	written := append([]byte(nil), p...)
	c.writes = append(c.writes, written)
	if c.respond != nil {
		c.in = append(c.in, c.respond(written)...)
	}
	return len(p), nil
}

func (c *scriptChannel) Read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return pollRead(ctx, timeout, &c.mu, &c.in)
}

func (c *scriptChannel) PeekByte() (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.in) == 0 {
		return 0, false
	}
	return c.in[0], true
}

func (c *scriptChannel) allWrites() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

// countWrites counts writes equal to the single byte b
func (c *scriptChannel) countWrites(b byte) int {
	n := 0
	for _, w := range c.allWrites() {
		if len(w) == 1 && w[0] == b {
			n++
		}
	}
	return n
}

// pipeEnd is one side of an in-memory loopback link
type pipeEnd struct {
	mu      sync.Mutex
	in      []byte
	peer    *pipeEnd
	onWrite func([]byte)
}

func newPipe() (*pipeEnd, *pipeEnd) {
	a, b := &pipeEnd{}, &pipeEnd{}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeEnd) Write(data []byte) (int, error) {
	if p.onWrite != nil {
		p.onWrite(append([]byte(nil), data...))
	}
	p.peer.mu.Lock()
	p.peer.in = append(p.peer.in, data...)
	p.peer.mu.Unlock()
	return len(data), nil
}

func (p *pipeEnd) Read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return pollRead(ctx, timeout, &p.mu, &p.in)
}

func (p *pipeEnd) PeekByte() (byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.in) == 0 {
		return 0, false
	}
	return p.in[0], true
}

func pollRead(ctx context.Context, timeout time.Duration, mu *sync.Mutex, buf *[]byte) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		mu.Lock()
		if len(*buf) > 0 {
			data := *buf
			*buf = nil
			mu.Unlock()
			return data, nil
		}
		mu.Unlock()

		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// ============================================================
// Shared Helpers
// ============================================================

func fastOptions() []Option {
	return []Option{
		WithStart(4, 20*time.Millisecond),
		WithReadTimeout(50 * time.Millisecond),
		WithEOTDelay(time.Millisecond),
	}
}

func mustPacket(t *testing.T, seq byte, chunk []byte) []byte {
	t.Helper()
	packet, err := BuildPacket(seq, PadBlock(chunk))
	if err != nil {
		t.Fatalf("BuildPacket: %v", err)
	}
	return packet
}

func isPacket(w []byte) bool {
	return len(w) == PacketSize && w[0] == STX
}

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 100
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 100
}

// newFuzzRng creates a seeded generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomPayload(rng *rand.Rand, n int) []byte {
	data := make([]byte, n)
	rng.Read(data)
	return data
}
