package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/torvik/sketchbridge/internal/config"
	"github.com/torvik/sketchbridge/internal/session"
	"github.com/torvik/sketchbridge/internal/store"
)

func newLogoutCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored credential and cached projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sketchbridge.yaml", "path to Sketchbridge config file")
	return cmd
}

func runLogout(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}

	sess := session.NewManager(nil, nil, st)
	sess.SignOut()
	if err := st.ClearProjects(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}
