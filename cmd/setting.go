// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fluidctl/pkg/controller"
)

var settingCmd = &cobra.Command{
	Use:   "setting",
	Short: "Read and write $ settings",
}

var settingGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print a setting, e.g. Config/Filename",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingGet,
}

var settingSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingSet,
}

func init() {
	settingCmd.AddCommand(settingGetCmd)
	settingCmd.AddCommand(settingSetCmd)
	rootCmd.AddCommand(settingCmd)
}

func runSettingGet(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	get := controller.NewGetSettingCommand(args[0])
	if err := s.Send(ctx, get, cmdTimeout); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	value, ok := get.Result()
	if !ok {
		return fmt.Errorf("%s: controller returned no value", args[0])
	}
	fmt.Println(value)
	return nil
}

func runSettingSet(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	if err := s.Send(ctx, controller.NewSetSettingCommand(args[0], args[1]), cmdTimeout); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}
