// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// fluidctl - FluidNC controller host tool
//
// A CLI tool for sending commands to FluidNC CNC controllers and moving
// files to and from their local filesystem.

package main

import (
	"os"

	"github.com/Thermoquad/fluidctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
