package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/torvik/sketchbridge/internal/config"
	"github.com/torvik/sketchbridge/internal/remote"
	"github.com/torvik/sketchbridge/internal/session"
	"github.com/torvik/sketchbridge/internal/store"
)

func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Work with synced sketch projects",
	}

	cmd.AddCommand(newProjectsListCmd())
	cmd.AddCommand(newProjectsShowCmd())
	return cmd
}

func newProjectsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects from the persistence service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectsList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sketchbridge.yaml", "path to Sketchbridge config file")
	return cmd
}

func newProjectsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one project's sketch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectsShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sketchbridge.yaml", "path to Sketchbridge config file")
	return cmd
}

// resumedSession restores the stored credential, failing when none is
// usable.
func resumedSession(ctx context.Context, cfg *config.Config) (*session.Manager, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	sess := session.NewManager(nil, remote.NewIdentityClient(cfg.Auth.UserInfoURL), st)
	if err := sess.Resume(ctx); err != nil {
		return nil, err
	}
	if !sess.IsAuthenticated() {
		return nil, fmt.Errorf("projects: not signed in (run 'sb login' first)")
	}
	return sess, nil
}

func runProjectsList(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	sess, err := resumedSession(ctx, cfg)
	if err != nil {
		return err
	}

	projects, err := remote.NewProjectsClient(cfg.Remote.ProjectsURL, sess.Token).List(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPUBLIC\tREPO")
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.ID, p.Name, p.IsPublic, p.RepoRef)
	}
	return w.Flush()
}

func runProjectsShow(cmd *cobra.Command, configPath, id string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	sess, err := resumedSession(ctx, cfg)
	if err != nil {
		return err
	}

	p, err := remote.NewProjectsClient(cfg.Remote.ProjectsURL, sess.Token).Get(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "// %s (%s)\n", p.Name, p.ID)
	fmt.Fprint(out, p.Code)
	return nil
}
