package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/torvik/sketchbridge/internal/api"
	"github.com/torvik/sketchbridge/internal/build"
	"github.com/torvik/sketchbridge/internal/catalog"
	"github.com/torvik/sketchbridge/internal/config"
	"github.com/torvik/sketchbridge/internal/device"
	"github.com/torvik/sketchbridge/internal/discovery"
	"github.com/torvik/sketchbridge/internal/notify"
	discordadapter "github.com/torvik/sketchbridge/internal/notify/discord"
	slackadapter "github.com/torvik/sketchbridge/internal/notify/slack"
	"github.com/torvik/sketchbridge/internal/project"
	"github.com/torvik/sketchbridge/internal/remote"
	"github.com/torvik/sketchbridge/internal/session"
	"github.com/torvik/sketchbridge/internal/store"
	"github.com/torvik/sketchbridge/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local bridge server",
		Long:  "Launches the bridge the browser editor talks to: JSON API, SSE state stream, and the device connection.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "sketchbridge.yaml", "path to Sketchbridge config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	// Session: OAuth round trip, identity verification, durable credential.
	verifier := remote.NewIdentityClient(cfg.Auth.UserInfoURL)
	var authorizer session.Authorizer
	if a := session.NewOAuthAuthorizer(cfg.Auth); a != nil {
		authorizer = a
	}
	sess := session.NewManager(authorizer, verifier, st)
	if err := sess.Resume(ctx); err != nil {
		log.Printf("serve: %v", err)
	}

	notifier := buildNotifier(cfg.Notify)

	// Device connection and telemetry.
	buf := telemetry.NewBuffer()
	dev := device.NewManager(remote.NewStreamDialer(cfg.Remote.StreamURL), cfg.Monitor.Rates, buf)

	// Build pipeline.
	builder := build.NewController(remote.NewBuildClient(cfg.Remote.BuildURL), notifier)

	// Projects, with the durable cache and the optional GitHub mirror.
	var mirror project.Mirror
	if m := project.NewGitHubMirror(cfg.Mirror.Token, cfg.Mirror.Owner); m != nil {
		mirror = m
	}
	projects := project.NewController(remote.NewProjectsClient(cfg.Remote.ProjectsURL, sess.Token), sess, st, mirror)
	sess.OnSignOut(projects.Reset)

	// Catalog and port discovery.
	cat := catalog.NewController(remote.NewCatalogClient(cfg.Remote.CatalogURL), notifier)
	watcher := discovery.NewWatcher(remote.NewPortsClient(cfg.Remote.CatalogURL), cfg.Discovery.RefreshCron)
	go watcher.Run(ctx)

	return api.Start(ctx, api.Options{
		Port:         cfg.Server.Port,
		Out:          cmd.OutOrStdout(),
		Session:      sess,
		Build:        builder,
		Device:       dev,
		Telemetry:    buf,
		Projects:     projects,
		Catalog:      cat,
		Discovery:    watcher,
		Rates:        cfg.Monitor.Rates,
		DefaultRate:  cfg.Monitor.DefaultRate,
		DefaultBoard: cfg.Monitor.DefaultBoard,
	})
}

// buildNotifier assembles the configured chat adapters. Returns nil when
// none are configured; the controllers treat a nil notifier as a no-op.
func buildNotifier(cfg config.NotifyConfig) *notify.Notifier {
	var adapters []notify.Adapter
	if cfg.Discord.BotToken != "" {
		a, err := discordadapter.New(cfg.Discord.BotToken, cfg.Discord.ChannelID)
		if err != nil {
			log.Printf("serve: discord notifications disabled: %v", err)
		} else {
			adapters = append(adapters, a)
		}
	}
	if cfg.Slack.BotToken != "" {
		a, err := slackadapter.New(cfg.Slack.BotToken, cfg.Slack.ChannelID)
		if err != nil {
			log.Printf("serve: slack notifications disabled: %v", err)
		} else {
			adapters = append(adapters, a)
		}
	}
	if len(adapters) == 0 {
		return nil
	}
	return notify.NewNotifier(adapters...)
}
