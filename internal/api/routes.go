package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/torvik/sketchbridge/internal/build"
	"github.com/torvik/sketchbridge/internal/catalog"
	"github.com/torvik/sketchbridge/internal/device"
	"github.com/torvik/sketchbridge/internal/project"
	"github.com/torvik/sketchbridge/internal/remote"
	"github.com/torvik/sketchbridge/internal/session"
)

// server binds the wired collaborators to gin handlers.
type server struct {
	opts Options
}

// registerRoutes sets up all bridge routes on the gin router.
func (s *server) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")

	api.GET("/state", s.handleState)
	api.GET("/events", s.handleSSE)

	api.GET("/auth/login", s.handleAuthLogin)
	api.GET("/auth/callback", s.handleAuthCallback)
	api.POST("/auth/logout", s.handleAuthLogout)

	api.GET("/build", s.handleBuildStatus)
	api.POST("/compile", s.handleCompile)
	api.POST("/upload", s.handleUpload)

	api.GET("/device", s.handleDeviceStatus)
	api.GET("/device/transcript", s.handleTranscript)
	api.POST("/device/connect", s.handleConnect)
	api.POST("/device/disconnect", s.handleDisconnect)
	api.POST("/device/send", s.handleSend)
	api.GET("/telemetry", s.handleTelemetry)

	api.GET("/ports", s.handlePorts)
	api.POST("/ports/refresh", s.handlePortsRefresh)

	api.GET("/projects", s.handleProjectList)
	api.POST("/projects", s.handleProjectCreate)
	api.GET("/projects/:id", s.handleProjectLoad)
	api.PUT("/projects/:id", s.handleProjectSave)
	api.DELETE("/projects/:id", s.handleProjectDelete)

	api.GET("/catalog/:kind/search", s.handleCatalogSearch)
	api.GET("/catalog/:kind/installed", s.handleCatalogInstalled)
	api.POST("/catalog/:kind/install", s.handleCatalogInstall)
	api.POST("/catalog/:kind/uninstall", s.handleCatalogUninstall)
}

// fail translates orchestrator errors to HTTP statuses: busy and
// overlapping-save rejections are conflicts, local validation is a bad
// request, credential problems are unauthorized, and upstream service
// failures are bad gateways.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var rerr *remote.RemoteError
	switch {
	case errors.Is(err, build.ErrBusy), errors.Is(err, project.ErrSaveInFlight):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNotSignedIn), errors.Is(err, remote.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, build.ErrEmptyCode), errors.Is(err, build.ErrNoEndpoint),
		errors.Is(err, device.ErrNoEndpoint), errors.Is(err, device.ErrBadRate),
		errors.Is(err, device.ErrAlreadyConnected), errors.Is(err, device.ErrNotConnected),
		errors.Is(err, project.ErrEmptyName),
		errors.Is(err, catalog.ErrEmptyQuery), errors.Is(err, catalog.ErrEmptyID):
		status = http.StatusBadRequest
	case errors.As(err, &rerr):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// stateView is the combined snapshot pushed over SSE and served at
// /api/state.
type stateView struct {
	Session      session.Snapshot `json:"session"`
	Build        build.Job        `json:"build"`
	Device       device.Snapshot  `json:"device"`
	Rates        []int            `json:"rates"`
	DefaultRate  int              `json:"default_rate"`
	DefaultBoard string           `json:"default_board"`
}

func (s *server) stateView() stateView {
	return stateView{
		Session:      s.opts.Session.Snapshot(),
		Build:        s.opts.Build.Snapshot(),
		Device:       s.opts.Device.Snapshot(),
		Rates:        s.opts.Rates,
		DefaultRate:  s.opts.DefaultRate,
		DefaultBoard: s.opts.DefaultBoard,
	}
}

func (s *server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.stateView())
}

func (s *server) handleAuthLogin(c *gin.Context) {
	state := newState()
	url, err := s.opts.Session.BeginSignIn(state)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "state": state})
}

func (s *server) handleAuthCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api: missing authorization code"})
		return
	}
	if expected := s.opts.Session.ExpectedState(); expected == "" || state != expected {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api: state mismatch"})
		return
	}
	if err := s.opts.Session.Exchange(c.Request.Context(), code); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.opts.Session.Snapshot())
}

func (s *server) handleAuthLogout(c *gin.Context) {
	s.opts.Session.SignOut()
	c.JSON(http.StatusOK, s.opts.Session.Snapshot())
}

func (s *server) handleBuildStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Build.Snapshot())
}

type compileRequest struct {
	Code  string `json:"code"`
	Board string `json:"board"`
}

func (s *server) handleCompile(c *gin.Context) {
	var req compileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api: invalid request body"})
		return
	}
	if req.Board == "" {
		req.Board = s.opts.DefaultBoard
	}
	if err := s.opts.Build.Compile(c.Request.Context(), req.Code, req.Board); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.opts.Build.Snapshot())
}

type uploadRequest struct {
	Code     string `json:"code"`
	Board    string `json:"board"`
	Endpoint string `json:"endpoint"`
}

func (s *server) handleUpload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api: invalid request body"})
		return
	}
	if req.Board == "" {
		req.Board = s.opts.DefaultBoard
	}
	if err := s.opts.Build.Upload(c.Request.Context(), req.Code, req.Board, req.Endpoint); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.opts.Build.Snapshot())
}

func (s *server) handleDeviceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Device.Snapshot())
}

func (s *server) handleTranscript(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": s.opts.Device.Transcript()})
}

type connectRequest struct {
	Endpoint string `json:"endpoint"`
	Rate     int    `json:"rate"`
}

func (s *server) handleConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api: invalid request body"})
		return
	}
	if req.Rate == 0 {
		req.Rate = s.opts.DefaultRate
	}
	if err := s.opts.Device.Connect(c.Request.Context(), req.Endpoint, req.Rate); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.opts.Device.Snapshot())
}

func (s *server) handleDisconnect(c *gin.Context) {
	if err := s.opts.Device.Disconnect(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.opts.Device.Snapshot())
}

type sendRequest struct {
	Text string `json:"text"`
}

func (s *server) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api: invalid request body"})
		return
	}
	if err := s.opts.Device.Send(req.Text); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.opts.Device.Snapshot())
}

func (s *server) handleTelemetry(c *gin.Context) {
	if s.opts.Telemetry == nil {
		c.JSON(http.StatusOK, gin.H{"samples": []struct{}{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"samples": s.opts.Telemetry.Samples()})
}

func (s *server) handlePorts(c *gin.Context) {
	if s.opts.Discovery == nil {
		c.JSON(http.StatusOK, gin.H{"ports": []struct{}{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ports": s.opts.Discovery.Ports()})
}

func (s *server) handlePortsRefresh(c *gin.Context) {
	if s.opts.Discovery == nil {
		c.JSON(http.StatusOK, gin.H{"ports": []struct{}{}})
		return
	}
	ports, err := s.opts.Discovery.Refresh(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

func (s *server) handleProjectList(c *gin.Context) {
	if s.opts.Projects == nil {
		c.JSON(http.StatusOK, gin.H{"projects": []struct{}{}})
		return
	}
	if s.opts.Session.IsAuthenticated() {
		if err := s.opts.Projects.Refresh(c.Request.Context()); err != nil {
			fail(c, err)
			return
		}
	}
	projects := s.opts.Projects.List()
	if projects == nil {
		projects = []remote.Project{}
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

type projectCreateRequest struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"is_public"`
}

func (s *server) handleProjectCreate(c *gin.Context) {
	var req projectCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api: invalid request body"})
		return
	}
	p, err := s.opts.Projects.Create(c.Request.Context(), req.Name, req.IsPublic)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *server) handleProjectLoad(c *gin.Context) {
	p, err := s.opts.Projects.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type projectSaveRequest struct {
	Code string `json:"code"`
}

func (s *server) handleProjectSave(c *gin.Context) {
	var req projectSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api: invalid request body"})
		return
	}
	p, err := s.opts.Projects.Save(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *server) handleProjectDelete(c *gin.Context) {
	if err := s.opts.Projects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// catalogKind maps the route segment to a catalog kind.
func catalogKind(c *gin.Context) (remote.CatalogKind, bool) {
	switch c.Param("kind") {
	case "boards":
		return remote.KindBoard, true
	case "libraries":
		return remote.KindLibrary, true
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "api: unknown catalog " + c.Param("kind")})
	return "", false
}

func (s *server) handleCatalogSearch(c *gin.Context) {
	kind, ok := catalogKind(c)
	if !ok {
		return
	}
	items, err := s.opts.Catalog.Search(c.Request.Context(), kind, c.Query("query"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *server) handleCatalogInstalled(c *gin.Context) {
	kind, ok := catalogKind(c)
	if !ok {
		return
	}
	items, err := s.opts.Catalog.Installed(c.Request.Context(), kind)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type catalogActionRequest struct {
	ID string `json:"id"`
}

func (s *server) handleCatalogInstall(c *gin.Context) {
	s.catalogAction(c, s.opts.Catalog.Install)
}

func (s *server) handleCatalogUninstall(c *gin.Context) {
	s.catalogAction(c, s.opts.Catalog.Uninstall)
}

func (s *server) catalogAction(c *gin.Context, op func(ctx context.Context, kind remote.CatalogKind, id string) (string, error)) {
	kind, ok := catalogKind(c)
	if !ok {
		return
	}
	var req catalogActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api: invalid request body"})
		return
	}
	msg, err := op(c.Request.Context(), kind, req.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// newState mints an opaque state parameter for the authorization round
// trip.
func newState() string {
	return uuid.New().String()
}
