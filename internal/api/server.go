// Package api exposes the orchestrator to the browser editor: JSON
// endpoints for every operation and an SSE stream pushing state so the
// editor never polls.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/torvik/sketchbridge/internal/build"
	"github.com/torvik/sketchbridge/internal/catalog"
	"github.com/torvik/sketchbridge/internal/device"
	"github.com/torvik/sketchbridge/internal/discovery"
	"github.com/torvik/sketchbridge/internal/project"
	"github.com/torvik/sketchbridge/internal/session"
	"github.com/torvik/sketchbridge/internal/telemetry"
)

// Options holds the wired collaborators for the HTTP server.
type Options struct {
	Port int
	Out  io.Writer

	Session   *session.Manager
	Build     *build.Controller
	Device    *device.Manager
	Telemetry *telemetry.Buffer
	Projects  *project.Controller
	Catalog   *catalog.Controller
	Discovery *discovery.Watcher

	Rates        []int
	DefaultRate  int
	DefaultBoard string
}

// Start launches the bridge HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts Options) error {
	if opts.Session == nil || opts.Build == nil || opts.Device == nil {
		return fmt.Errorf("api: session, build, and device are required")
	}
	if opts.Port <= 0 {
		opts.Port = 8266
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(opts)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Bridge running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// newRouter builds the gin engine with all routes registered.
func newRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	s := &server{opts: opts}
	s.registerRoutes(router)
	return router
}
