package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/torvik/sketchbridge/internal/build"
	"github.com/torvik/sketchbridge/internal/catalog"
	"github.com/torvik/sketchbridge/internal/device"
	"github.com/torvik/sketchbridge/internal/discovery"
	"github.com/torvik/sketchbridge/internal/models"
	"github.com/torvik/sketchbridge/internal/project"
	"github.com/torvik/sketchbridge/internal/remote"
	"github.com/torvik/sketchbridge/internal/session"
	"github.com/torvik/sketchbridge/internal/telemetry"
)

// --- collaborator fakes ---

type memStore struct {
	cred *models.Credential
}

func (m *memStore) SaveCredential(token, handle, avatarURL string) error {
	m.cred = &models.Credential{ID: 1, Token: token, Handle: handle, AvatarURL: avatarURL}
	return nil
}

func (m *memStore) LoadCredential() (*models.Credential, error) { return m.cred, nil }

func (m *memStore) ClearCredential() error {
	m.cred = nil
	return nil
}

type stubAuthorizer struct{}

func (stubAuthorizer) AuthURL(state string) string { return "https://auth.example/authorize?state=" + state }

func (stubAuthorizer) Exchange(ctx context.Context, code string) (string, error) {
	if code == "good-code" {
		return "tok-1", nil
	}
	return "", fmt.Errorf("session: bad code")
}

type stubVerifier struct{}

func (stubVerifier) Fetch(ctx context.Context, token string) (*remote.Identity, error) {
	return &remote.Identity{Handle: "maker", AvatarURL: "https://a.example/maker.png"}, nil
}

type stubBuildService struct {
	err error
}

func (s *stubBuildService) Compile(ctx context.Context, code, board string) (string, error) {
	return "compiled", s.err
}

func (s *stubBuildService) Flash(ctx context.Context, code, board, port string) (string, error) {
	return "flashed", s.err
}

type stubStream struct {
	recv chan string
	done chan struct{}
	sent []string
}

func (s *stubStream) Send(text string) error {
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubStream) Recv() <-chan string   { return s.recv }
func (s *stubStream) Done() <-chan struct{} { return s.done }

func (s *stubStream) Close() error {
	select {
	case <-s.done:
	default:
		close(s.recv)
		close(s.done)
	}
	return nil
}

type stubDialer struct{}

func (stubDialer) Dial(ctx context.Context, endpoint string, rate int) (device.Stream, error) {
	return &stubStream{recv: make(chan string, 4), done: make(chan struct{})}, nil
}

type stubProjectService struct{}

func (stubProjectService) List(ctx context.Context) ([]remote.Project, error) {
	return []remote.Project{{ID: "p1", Name: "blinky", Code: "void loop(){}"}}, nil
}

func (stubProjectService) Get(ctx context.Context, id string) (*remote.Project, error) {
	return &remote.Project{ID: id, Name: "blinky", Code: "void loop(){}"}, nil
}

func (stubProjectService) Create(ctx context.Context, name, code string, isPublic bool) (*remote.Project, error) {
	return &remote.Project{ID: "p-new", Name: name, Code: code, IsPublic: isPublic}, nil
}

func (stubProjectService) Update(ctx context.Context, id, code string) (*remote.Project, error) {
	return &remote.Project{ID: id, Name: "blinky", Code: code}, nil
}

func (stubProjectService) Delete(ctx context.Context, id string) error { return nil }

type stubCatalogService struct {
	err error
}

func (s *stubCatalogService) Search(ctx context.Context, kind remote.CatalogKind, query string) ([]remote.CatalogItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []remote.CatalogItem{{ID: "servo", Name: "Servo"}}, nil
}

func (s *stubCatalogService) ListInstalled(ctx context.Context, kind remote.CatalogKind) ([]remote.CatalogItem, error) {
	return nil, s.err
}

func (s *stubCatalogService) Install(ctx context.Context, kind remote.CatalogKind, id string) (string, error) {
	return "installed " + id, s.err
}

func (s *stubCatalogService) Uninstall(ctx context.Context, kind remote.CatalogKind, id string) (string, error) {
	return "removed " + id, s.err
}

type stubLister struct{}

func (stubLister) List(ctx context.Context) ([]remote.Port, error) {
	return []remote.Port{{Address: "/dev/ttyACM0", Protocol: "serial"}}, nil
}

// testHarness bundles the wired router with its fakes.
type testHarness struct {
	router  *gin.Engine
	sess    *session.Manager
	catalog *stubCatalogService
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sess := session.NewManager(stubAuthorizer{}, stubVerifier{}, &memStore{})
	buf := telemetry.NewBuffer()
	dev := device.NewManager(stubDialer{}, []int{9600, 115200}, buf)
	builder := build.NewController(&stubBuildService{}, nil)
	projects := project.NewController(stubProjectService{}, sess, nil, nil)
	sess.OnSignOut(projects.Reset)
	catalogSvc := &stubCatalogService{}
	cat := catalog.NewController(catalogSvc, nil)
	watcher := discovery.NewWatcher(stubLister{}, "* * * * *")

	router := newRouter(Options{
		Session:      sess,
		Build:        builder,
		Device:       dev,
		Telemetry:    buf,
		Projects:     projects,
		Catalog:      cat,
		Discovery:    watcher,
		Rates:        []int{9600, 115200},
		DefaultRate:  9600,
		DefaultBoard: "arduino:avr:uno",
	})
	return &testHarness{router: router, sess: sess, catalog: catalogSvc}
}

func (h *testHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *testHarness) signIn(t *testing.T) {
	t.Helper()
	if err := h.sess.CompleteSignIn(context.Background(), "tok-1", nil); err != nil {
		t.Fatalf("sign in: %v", err)
	}
}

// --- tests ---

func TestState_DefaultsExposed(t *testing.T) {
	h := newTestHarness(t)

	w := h.do(t, http.MethodGet, "/api/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var view stateView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Session.Authenticated {
		t.Error("fresh session reports authenticated")
	}
	if view.Device.State != device.StateDisconnected {
		t.Errorf("device state = %s, want disconnected", view.Device.State)
	}
	if view.DefaultBoard != "arduino:avr:uno" || view.DefaultRate != 9600 {
		t.Errorf("defaults = %q %d", view.DefaultBoard, view.DefaultRate)
	}
}

func TestCompile_EmptyCodeIsBadRequest(t *testing.T) {
	h := newTestHarness(t)
	w := h.do(t, http.MethodPost, "/api/compile", `{"code":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestCompile_DefaultBoardApplied(t *testing.T) {
	h := newTestHarness(t)
	w := h.do(t, http.MethodPost, "/api/compile", `{"code":"void loop(){}"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var job build.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Board != "arduino:avr:uno" {
		t.Errorf("board = %q, want default", job.Board)
	}
	if job.Phase != build.PhaseSucceeded {
		t.Errorf("phase = %s, want succeeded", job.Phase)
	}
}

func TestUpload_WithoutEndpointIsBadRequest(t *testing.T) {
	h := newTestHarness(t)
	w := h.do(t, http.MethodPost, "/api/upload", `{"code":"void loop(){}"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestDevice_ConnectSendDisconnect(t *testing.T) {
	h := newTestHarness(t)

	w := h.do(t, http.MethodPost, "/api/device/connect", `{"endpoint":"/dev/ttyACM0"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("connect: status = %d: %s", w.Code, w.Body.String())
	}
	var snap device.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != device.StateConnected || snap.Rate != 9600 {
		t.Errorf("snapshot = %+v, want connected at default rate", snap)
	}

	if w := h.do(t, http.MethodPost, "/api/device/connect", `{"endpoint":"/dev/ttyUSB1"}`); w.Code != http.StatusBadRequest {
		t.Errorf("second connect: status = %d, want 400", w.Code)
	}

	if w := h.do(t, http.MethodPost, "/api/device/send", `{"text":"ping"}`); w.Code != http.StatusOK {
		t.Errorf("send: status = %d: %s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodGet, "/api/device/transcript", "")
	if w.Code != http.StatusOK {
		t.Fatalf("transcript: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ping") {
		t.Errorf("transcript missing echo: %s", w.Body.String())
	}

	if w := h.do(t, http.MethodPost, "/api/device/disconnect", ""); w.Code != http.StatusOK {
		t.Errorf("disconnect: status = %d", w.Code)
	}
}

func TestDevice_BadRateIsBadRequest(t *testing.T) {
	h := newTestHarness(t)
	w := h.do(t, http.MethodPost, "/api/device/connect", `{"endpoint":"/dev/ttyACM0","rate":1200}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestProjects_RequireSession(t *testing.T) {
	h := newTestHarness(t)

	if w := h.do(t, http.MethodPut, "/api/projects/p1", `{"code":"x"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("save signed out: status = %d, want 401", w.Code)
	}
	if w := h.do(t, http.MethodPost, "/api/projects", `{"name":"blinky"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("create signed out: status = %d, want 401", w.Code)
	}

	// Listing is not an error, just empty.
	w := h.do(t, http.MethodGet, "/api/projects", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list signed out: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"projects":[]`) {
		t.Errorf("list signed out = %s, want empty array", w.Body.String())
	}
}

func TestProjects_CRUDWhenSignedIn(t *testing.T) {
	h := newTestHarness(t)
	h.signIn(t)

	w := h.do(t, http.MethodGet, "/api/projects", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "blinky") {
		t.Errorf("list: status = %d body = %s", w.Code, w.Body.String())
	}

	w = h.do(t, http.MethodPost, "/api/projects", `{"name":"servo"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "void setup()") {
		t.Errorf("created project missing default sketch: %s", w.Body.String())
	}

	w = h.do(t, http.MethodPut, "/api/projects/p1", `{"code":"void loop(){delay(1);}"}`)
	if w.Code != http.StatusOK {
		t.Errorf("save: status = %d: %s", w.Code, w.Body.String())
	}

	if w := h.do(t, http.MethodDelete, "/api/projects/p1", ""); w.Code != http.StatusOK {
		t.Errorf("delete: status = %d: %s", w.Code, w.Body.String())
	}
}

func TestAuth_LoginCallbackLogout(t *testing.T) {
	h := newTestHarness(t)

	w := h.do(t, http.MethodGet, "/api/auth/login", "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: status = %d", w.Code)
	}
	var login struct {
		URL   string `json:"url"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(login.URL, login.State) {
		t.Errorf("auth url %q does not carry state %q", login.URL, login.State)
	}

	if w := h.do(t, http.MethodGet, "/api/auth/callback?code=good-code&state=wrong", ""); w.Code != http.StatusBadRequest {
		t.Errorf("callback with bad state: status = %d, want 400", w.Code)
	}

	w = h.do(t, http.MethodGet, "/api/auth/callback?code=good-code&state="+login.State, "")
	if w.Code != http.StatusOK {
		t.Fatalf("callback: status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"authenticated":true`) {
		t.Errorf("callback body = %s, want authenticated", w.Body.String())
	}

	w = h.do(t, http.MethodPost, "/api/auth/logout", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"authenticated":false`) {
		t.Errorf("logout: status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestCatalog_KindRoutingAndUpstreamFailure(t *testing.T) {
	h := newTestHarness(t)

	if w := h.do(t, http.MethodGet, "/api/catalog/gadgets/search?query=x", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown kind: status = %d, want 404", w.Code)
	}

	w := h.do(t, http.MethodGet, "/api/catalog/libraries/search?query=servo", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Servo") {
		t.Errorf("search: status = %d body = %s", w.Code, w.Body.String())
	}

	h.catalog.err = &remote.RemoteError{Op: "library.search", Detail: "catalog down"}
	if w := h.do(t, http.MethodGet, "/api/catalog/libraries/search?query=servo", ""); w.Code != http.StatusBadGateway {
		t.Errorf("upstream failure: status = %d, want 502", w.Code)
	}
}

func TestPorts_ServedFromCache(t *testing.T) {
	h := newTestHarness(t)

	w := h.do(t, http.MethodGet, "/api/ports", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ports":[]`) {
		t.Errorf("ports before refresh: status = %d body = %s", w.Code, w.Body.String())
	}

	if w := h.do(t, http.MethodPost, "/api/ports/refresh", ""); w.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d", w.Code)
	}
	w = h.do(t, http.MethodGet, "/api/ports", "")
	if !strings.Contains(w.Body.String(), "/dev/ttyACM0") {
		t.Errorf("ports after refresh = %s", w.Body.String())
	}
}
