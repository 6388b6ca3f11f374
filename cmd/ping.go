// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fluidctl/pkg/controller"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure status report round trips",
	Long: `Send realtime status requests and time the reports that come back.

Useful for verifying:
  - the serial port or WebSocket reaches a FluidNC controller
  - HTTP Basic authentication works
  - the link is fast and stable enough for file transfers

Exit codes:
  0 - All pings answered
  1 - One or more pings timed out
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 5, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 200*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer closeSession(s)

	fmt.Printf("fluidctl - Ping\n")
	fmt.Printf("Connection: %s\n\n", s.Transport())

	var answered int
	var total, best, worst time.Duration
	for i := 1; i <= pingCount && ctx.Err() == nil; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		status := controller.NewStatusCommand()
		start := time.Now()
		err := s.Send(ctx, status, cmdTimeout)
		rtt := time.Since(start)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
		} else {
			fmt.Printf("%s, rtt=%v\n", status.Result().State, rtt.Round(100*time.Microsecond))
			answered++
			total += rtt
			if best == 0 || rtt < best {
				best = rtt
			}
			worst = max(worst, rtt)
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d answered, %.0f%% lost\n",
		pingCount, answered, float64(pingCount-answered)/float64(pingCount)*100)
	if answered > 0 {
		fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
			best.Round(100*time.Microsecond),
			(total / time.Duration(answered)).Round(100*time.Microsecond),
			worst.Round(100*time.Microsecond))
	}

	if answered < pingCount {
		closeSession(s)
		os.Exit(1)
	}
	return nil
}
