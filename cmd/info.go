// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fluidctl/pkg/controller"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show firmware version, machine state and active config",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print one machine status report",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(statusCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	fmt.Printf("Connection: %s\n", s.Transport())
	fmt.Printf("Status:     %s\n", s.Status())
	if s.Status() != controller.StatusConnected {
		return nil
	}

	version := controller.NewVersionCommand()
	if err := s.Send(ctx, version, cmdTimeout); err != nil {
		return fmt.Errorf("build info: %w", err)
	}
	if v, ok := version.Result(); ok {
		fmt.Printf("Firmware:   %s\n", v)
		if v.Name != "" {
			fmt.Printf("Machine:    %s\n", v.Name)
		}
		if len(v.Options) > 0 {
			fmt.Printf("Options:    %s\n", strings.Join(v.Options, ","))
		}
	}

	config := controller.NewConfigFilenameCommand()
	if err := s.Send(ctx, config, cmdTimeout); err != nil {
		logger.Warn().Err(err).Msg("Could not read config filename")
	} else if name, ok := config.Result(); ok {
		fmt.Printf("Config:     %s\n", name)
	}

	status := controller.NewStatusCommand()
	if err := s.Send(ctx, status, cmdTimeout); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	printMachineStatus(status.Result())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	status := controller.NewStatusCommand()
	if err := s.Send(ctx, status, cmdTimeout); err != nil {
		return err
	}
	printMachineStatus(status.Result())
	return nil
}

func printMachineStatus(st controller.MachineStatus) {
	state := st.State
	if st.SubState != "" {
		state += ":" + st.SubState
	}
	fmt.Printf("State:      %s\n", state)

	keys := make([]string, 0, len(st.Fields))
	for k := range st.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-8s %s\n", k+":", st.Fields[k])
	}
}
