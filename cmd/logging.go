// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// newLogger builds the human readable stderr logger
func newLogger(level string, verbose bool) (zerolog.Logger, error) {
	if verbose {
		level = "debug"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger(), nil
}
