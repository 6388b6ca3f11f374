// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fluidctl/pkg/transport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports on this machine, USB ports first.

Known USB-serial bridges used on ESP32 boards are named, which usually
identifies the controller's port.`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	for _, p := range ports {
		if !p.IsUSB {
			fmt.Printf("%s\n", p.Name)
			continue
		}
		desc := p.Product
		if vendor := p.Vendor(); vendor != "" {
			desc = vendor
		}
		fmt.Printf("%-20s %s:%s  %s", p.Name, p.VID, p.PID, desc)
		if p.SerialNumber != "" {
			fmt.Printf("  (S/N %s)", p.SerialNumber)
		}
		fmt.Println()
	}
	return nil
}
