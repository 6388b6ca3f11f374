// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fluidctl/pkg/controller"
)

var (
	monitorInterval time.Duration
	monitorNoTime   bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print controller output as it arrives",
	Long: `Continuously print everything the controller sends that is not a reply
to a command: boot messages, alarms, [MSG:...] notices and status reports.

With --status-interval a status report is requested periodically.

Supports both serial and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "status-interval", 0, "Request a status report this often (0 disables)")
	monitorCmd.Flags().BoolVar(&monitorNoTime, "no-timestamps", false, "Omit timestamps")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	lines := make(chan string, 256)
	s, err := openSession(ctx, controller.WithUnsolicitedHandler(func(line string) {
		select {
		case lines <- line:
		default:
			logger.Warn().Msg("Output backlog full, dropping line")
		}
	}))
	if err != nil {
		return err
	}
	defer closeSession(s)

	fmt.Printf("fluidctl - Monitor\n")
	fmt.Printf("Connection: %s (%s)\n", s.Transport(), s.Status())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var tick <-chan time.Time
	if monitorInterval > 0 {
		ticker := time.NewTicker(monitorInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if err := s.SendRealtime(controller.RealtimeStatus); err != nil {
				return err
			}
		case line := <-lines:
			if monitorNoTime {
				fmt.Println(line)
			} else {
				fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), line)
			}
		}
	}
}
