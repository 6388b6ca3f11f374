// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <line>...",
	Short: "Send command lines and print the replies",
	Long: `Send one or more lines to the controller, waiting for each to be
acknowledged before sending the next.

Examples:
  fluidctl send -p /dev/ttyUSB0 '$I'
  fluidctl send -p /dev/ttyUSB0 '$X' 'G0 X10 Y10'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	for _, line := range args {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		output, err := s.SendLine(ctx, line, cmdTimeout)
		for _, out := range output {
			fmt.Println(out)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", line, err)
		}
	}
	return nil
}
