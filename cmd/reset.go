// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fluidctl/pkg/controller"
	"github.com/Thermoquad/fluidctl/pkg/transport"
)

var (
	resetSoft   bool
	resetReboot bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restart the controller and wait for it to boot",
	Long: `Restart the controller and report how it came back.

By default the board is hard reset through the serial DTR/RTS lines, which
also works when the firmware is hung. --soft sends Ctrl-X instead and
--reboot asks the firmware to restart itself; both also work over WebSocket.

A board that keeps rebooting during startup, usually because of a broken
config.yaml, is reported as a reset loop.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVar(&resetSoft, "soft", false, "Soft reset with Ctrl-X")
	resetCmd.Flags().BoolVar(&resetReboot, "reboot", false, "Reboot with $Bye")
}

func runReset(cmd *cobra.Command, args []string) error {
	if resetSoft && resetReboot {
		return fmt.Errorf("--soft and --reboot are mutually exclusive")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	var welcome controller.Welcome
	switch {
	case resetSoft:
		welcome, err = s.SoftReset(ctx)
	case resetReboot:
		welcome, err = s.Reboot(ctx)
	default:
		welcome, err = s.Restart(ctx)
		if errors.Is(err, transport.ErrSignalsUnsupported) {
			return fmt.Errorf("hard reset needs a serial connection, try --soft or --reboot: %w", err)
		}
	}

	if welcome.Kind == controller.WelcomeResetLoop {
		return fmt.Errorf("controller is stuck in a reset loop (%d resets seen); check config.yaml", welcome.Resets)
	}
	if err != nil {
		return fmt.Errorf("no welcome after reset: %w", err)
	}
	fmt.Printf("Controller restarted: %s\n", welcome)
	return nil
}
