// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"context"
	"sync"
	"time"

	"github.com/Thermoquad/fluidctl/pkg/transport"
)

// blockPort exposes the raw byte stream to the xmodem engine while the
// session is in block mode. It is the token proving block mode ownership.
type blockPort struct {
	t transport.Transport

	mu     sync.Mutex
	buf    []byte
	notify chan struct{}
}

func newBlockPort(t transport.Transport) *blockPort {
	return &blockPort{t: t, notify: make(chan struct{}, 1)}
}

// push buffers input from the transport reader
func (p *blockPort) push(data []byte) {
	p.mu.Lock()
	p.buf = append(p.buf, data...)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *blockPort) Write(b []byte) (int, error) {
	return p.t.Write(b)
}

func (p *blockPort) take() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	data := p.buf
	p.buf = nil
	return data
}

func (p *blockPort) Read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if data := p.take(); len(data) > 0 || timeout <= 0 {
		return data, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return p.take(), nil
		case <-p.notify:
			if data := p.take(); len(data) > 0 {
				return data, nil
			}
		}
	}
}

func (p *blockPort) PeekByte() (byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return 0, false
	}
	return p.buf[0], true
}

// discard drops anything buffered so far
func (p *blockPort) discard() int {
	return len(p.take())
}
