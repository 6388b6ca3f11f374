// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/fluidctl/pkg/controller"
	"github.com/Thermoquad/fluidctl/pkg/transport"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("FLUIDCTL_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenTransport builds a serial or WebSocket transport from flags
func OpenTransport() (transport.Transport, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}

		ws, err := transport.NewWebSocket(wsURL, transport.WebSocketOptions{
			Username:      wsUsername,
			Password:      password,
			SkipSSLVerify: wsNoSSLVerify,
		}, logger.With().Str("component", "websocket").Logger())
		if err != nil {
			return nil, err
		}
		return ws, nil
	}

	if portName != "" {
		return transport.NewSerial(portName, baudRate, logger.With().Str("component", "serial").Logger()), nil
	}

	return nil, fmt.Errorf("either --port or --url must be specified")
}

// commandContext is cancelled on Ctrl+C
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// openSession connects to the controller named by the connection flags.
// An unknown device is reported but not treated as fatal.
func openSession(ctx context.Context, opts ...controller.Option) (*controller.Session, error) {
	t, err := OpenTransport()
	if err != nil {
		return nil, err
	}

	timings := controller.DefaultTimings()
	timings.CommandTimeout = cmdTimeout
	opts = append([]controller.Option{
		controller.WithLogger(logger.With().Str("component", "session").Logger()),
		controller.WithTimings(timings),
	}, opts...)

	s := controller.New(t, opts...)
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	if s.Status() == controller.StatusUnknownDevice {
		fmt.Fprintf(os.Stderr, "Warning: no FluidNC controller answered on %s\n", t)
	}
	return s, nil
}

// closeSession disconnects, logging failures
func closeSession(s *controller.Session) {
	if err := s.Disconnect(); err != nil {
		logger.Warn().Err(err).Msg("Disconnect failed")
	}
}
