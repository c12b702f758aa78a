package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/torvik/sketchbridge/internal/config"
	"github.com/torvik/sketchbridge/internal/remote"
)

func newPortsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List attached device endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPorts(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sketchbridge.yaml", "path to Sketchbridge config file")
	return cmd
}

func runPorts(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ports, err := remote.NewPortsClient(cfg.Remote.CatalogURL).List(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		fmt.Fprintln(out, "No devices attached")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tPROTOCOL\tLABEL\tBOARD")
	for _, p := range ports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Address, p.Protocol, p.Label, p.Board)
	}
	return w.Flush()
}
