package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/torvik/sketchbridge/internal/config"
	"github.com/torvik/sketchbridge/internal/remote"
	"github.com/torvik/sketchbridge/internal/session"
	"github.com/torvik/sketchbridge/internal/store"
)

func newLoginCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a personal access token",
		Long:  "Stores a credential for the project persistence service. The browser flow in 'sb serve' is the usual path; this is the terminal alternative.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sketchbridge.yaml", "path to Sketchbridge config file")
	return cmd
}

func runLogin(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), "Token: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("login: read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return fmt.Errorf("login: empty token")
	}

	sess := session.NewManager(nil, remote.NewIdentityClient(cfg.Auth.UserInfoURL), st)
	if err := sess.CompleteSignIn(context.Background(), token, nil); err != nil {
		return err
	}

	snap := sess.Snapshot()
	if snap.Identity != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", snap.Identity.Handle)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Credential stored (identity verification deferred)")
	}
	return nil
}
