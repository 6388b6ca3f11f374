// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// Serial is a Transport over a local serial port
type Serial struct {
	portName string
	baudRate int
	log      zerolog.Logger

	mu     sync.Mutex
	port   serial.Port
	reader Reader
}

// NewSerial creates a serial transport. The port is opened by Open.
func NewSerial(portName string, baudRate int, logger zerolog.Logger) *Serial {
	return &Serial{
		portName: portName,
		baudRate: baudRate,
		log:      logger,
	}
}

// Open opens the port 8N1 and starts the reader goroutine
func (s *Serial) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(s.portName, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.portName, err)
	}

	s.attach(port)

	s.log.Debug().Str("port", s.portName).Int("baud", s.baudRate).Msg("serial port opened")
	return nil
}

// attach adopts an open port and starts reading from it. s.mu must be held.
func (s *Serial) attach(port serial.Port) {
	s.port = port
	go s.readLoop(port)
}

// readLoop pushes incoming chunks to the reader. A read error on the
// current port, such as the board being unplugged, closes it.
func (s *Serial) readLoop(port serial.Port) {
	buf := make([]byte, 1024)
	for {
		n, err := port.Read(buf)
		if err != nil {
			s.mu.Lock()
			current := s.port == port
			if current {
				s.port = nil
			}
			s.mu.Unlock()

			if current {
				s.log.Warn().Err(err).Str("port", s.portName).Msg("serial read failed")
				port.Close()
			}
			return
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		s.mu.Lock()
		reader := s.reader
		s.mu.Unlock()
		if reader != nil {
			reader(data)
		}
	}
}

// Close closes the port, which also ends the reader goroutine
func (s *Serial) Close() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}

// IsOpen reports whether the port is open
func (s *Serial) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

func (s *Serial) current() (serial.Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil, ErrNotOpen
	}
	return s.port, nil
}

func (s *Serial) Write(p []byte) (int, error) {
	port, err := s.current()
	if err != nil {
		return 0, err
	}
	return port.Write(p)
}

// SetReader registers the callback for incoming bytes
func (s *Serial) SetReader(r Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = r
}

func (s *Serial) SetDTR(level bool) error {
	port, err := s.current()
	if err != nil {
		return err
	}
	return port.SetDTR(level)
}

func (s *Serial) SetRTS(level bool) error {
	port, err := s.current()
	if err != nil {
		return err
	}
	return port.SetRTS(level)
}

func (s *Serial) String() string {
	return fmt.Sprintf("Serial: %s @ %d baud", s.portName, s.baudRate)
}
