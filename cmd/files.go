// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fluidctl/pkg/controller"
	"github.com/Thermoquad/fluidctl/pkg/xmodem"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List files on the controller's local filesystem",
	Args:  cobra.NoArgs,
	RunE:  runLs,
}

var getCmd = &cobra.Command{
	Use:   "get <remote> [local]",
	Short: "Download a file from the controller over XMODEM",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runGet,
}

var putCmd = &cobra.Command{
	Use:   "put <local> [remote]",
	Short: "Upload a file to the controller over XMODEM",
	Long: `Upload a file to the controller's local filesystem over XMODEM-1K.

The remote name defaults to the local file's base name. Uploading
config.yaml replaces the machine configuration; run "fluidctl reset"
afterwards to load it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPut,
}

var rmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Delete a file from the controller's local filesystem",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var showTransferStats bool

func init() {
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(rmCmd)

	for _, c := range []*cobra.Command{getCmd, putCmd} {
		c.Flags().BoolVar(&showTransferStats, "stats", false, "Print transfer statistics")
	}
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	list := controller.NewListFilesCommand()
	if err := s.Send(ctx, list, cmdTimeout); err != nil {
		return err
	}
	files, err := list.Result()
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Printf("%10d  %s\n", f.Size, f.Name)
	}
	return nil
}

// transferOptions prints progress on stderr
func transferOptions(stats *xmodem.Statistics) []xmodem.Option {
	return []xmodem.Option{
		xmodem.WithStatistics(stats),
		xmodem.WithProgressCallback(func(p xmodem.Progress) {
			if p.Total > 0 {
				fmt.Fprintf(os.Stderr, "\r%s: block %d, %d/%d bytes", p.Op, p.Block, p.Bytes, p.Total)
			} else {
				fmt.Fprintf(os.Stderr, "\r%s: block %d, %d bytes", p.Op, p.Block, p.Bytes)
			}
		}),
	}
}

func finishTransfer(stats *xmodem.Statistics) {
	fmt.Fprintln(os.Stderr)
	if showTransferStats {
		fmt.Fprintln(os.Stderr, stats)
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	remote := args[0]
	local := filepath.Base(remote)
	if len(args) > 1 {
		local = args[1]
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	stats := xmodem.NewStatistics()
	data, err := s.DownloadFile(ctx, remote, transferOptions(stats)...)
	finishTransfer(stats)
	if err != nil {
		return err
	}

	if err := os.WriteFile(local, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", local, err)
	}
	fmt.Printf("Downloaded %s -> %s (%d bytes)\n", remote, local, len(data))
	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	local := args[0]
	remote := filepath.Base(local)
	if len(args) > 1 {
		remote = args[1]
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", local, err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	stats := xmodem.NewStatistics()
	err = s.UploadFile(ctx, remote, data, transferOptions(stats)...)
	finishTransfer(stats)
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded %s -> %s (%d bytes)\n", local, remote, len(data))
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession(s)

	if err := s.Send(ctx, controller.NewDeleteFileCommand(args[0]), cmdTimeout); err != nil {
		return fmt.Errorf("delete %s: %w", args[0], err)
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
