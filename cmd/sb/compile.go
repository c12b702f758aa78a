package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/torvik/sketchbridge/internal/config"
	"github.com/torvik/sketchbridge/internal/remote"
)

func newCompileCmd() *cobra.Command {
	var (
		configPath string
		board      string
		port       string
		upload     bool
	)

	cmd := &cobra.Command{
		Use:   "compile <sketch.ino>",
		Short: "Compile a sketch file against the build service",
		Long:  "Submits a local sketch file to the remote build service, optionally flashing it to a device afterwards.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, configPath, args[0], board, port, upload)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sketchbridge.yaml", "path to Sketchbridge config file")
	cmd.Flags().StringVarP(&board, "board", "b", "", "board fqbn (defaults to the configured board)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "device endpoint for upload")
	cmd.Flags().BoolVarP(&upload, "upload", "u", false, "flash the sketch after compiling")
	return cmd
}

func runCompile(cmd *cobra.Command, configPath, sketchPath, board, port string, upload bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if board == "" {
		board = cfg.Monitor.DefaultBoard
	}

	code, err := os.ReadFile(sketchPath)
	if err != nil {
		return fmt.Errorf("compile: read %s: %w", sketchPath, err)
	}

	client := remote.NewBuildClient(cfg.Remote.BuildURL)
	ctx := context.Background()
	out := cmd.OutOrStdout()

	if upload {
		if port == "" {
			return fmt.Errorf("compile: --port is required with --upload")
		}
		output, err := client.Flash(ctx, string(code), board, port)
		if output != "" {
			fmt.Fprintln(out, output)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Uploaded %s to %s via %s\n", sketchPath, board, port)
		return nil
	}

	output, err := client.Compile(ctx, string(code), board)
	if output != "" {
		fmt.Fprintln(out, output)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Compiled %s for %s\n", sketchPath, board)
	return nil
}
