// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Behaviour flags
	cmdTimeout time.Duration
	logLevel   string
	verbose    bool

	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "fluidctl",
	Short: "FluidNC controller host tool",
	Long: `fluidctl - talk to FluidNC CNC controllers from the command line.

Sends commands, reads status and settings, and moves files to and from the
controller's local filesystem over XMODEM.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://fluidnc.local:81 [--username user]

For WebSocket authentication, the password is read from the FLUIDCTL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "0.3.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(logLevel, verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().DurationVar(&cmdTimeout, "timeout", 3*time.Second, "Timeout for each controller command")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level debug")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
