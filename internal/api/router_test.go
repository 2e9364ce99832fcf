package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/lightshow/lightshow/internal/animation"
	"github.com/lightshow/lightshow/internal/api/common"
	"github.com/lightshow/lightshow/internal/auth"
	"github.com/lightshow/lightshow/internal/config"
	"github.com/lightshow/lightshow/internal/eventbus"
	"github.com/lightshow/lightshow/internal/generators"
	"github.com/lightshow/lightshow/internal/light"
	"github.com/lightshow/lightshow/internal/middleware"
	"github.com/lightshow/lightshow/internal/plugins"
	"github.com/lightshow/lightshow/internal/protocol"
	"github.com/lightshow/lightshow/internal/scheduler"
)

type fakeController struct {
	mu       sync.Mutex
	active   string
	selected []string
	applied  []animation.Values
	restarts int
	schema   []animation.ParameterSchema
}

func (c *fakeController) Select(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = id
	c.selected = append(c.selected, id)
	return nil
}

func (c *fakeController) Respawn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == "" {
		return scheduler.ErrNoAnimation
	}
	return nil
}

func (c *fakeController) Restart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restarts++
	return nil
}

func (c *fakeController) SetParameters(ctx context.Context, vs animation.Values) error {
	if err := animation.CheckValues(c.schema, vs); err != nil {
		return protocol.NewError(protocol.CodeInvalidParams, err.Error(), nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, vs)
	return nil
}

func (c *fakeController) Parameters(ctx context.Context) (animation.Values, error) {
	return animation.Defaults(c.schema), nil
}

func (c *fakeController) Schema(ctx context.Context) ([]animation.ParameterSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == "" {
		return nil, scheduler.ErrNoAnimation
	}
	return c.schema, nil
}

func (c *fakeController) Status() scheduler.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return scheduler.Status{Animation: c.active, State: "ready"}
}

type fakeCatalog []*plugins.Descriptor

func (c fakeCatalog) Get(id string) (*plugins.Descriptor, bool) {
	for _, d := range c {
		if d.ID() == id {
			return d, true
		}
	}
	return nil, false
}

func (c fakeCatalog) List() []*plugins.Descriptor { return c }

type testEnv struct {
	server *httptest.Server
	ctrl   *fakeController
	token  string
	hub    *light.Hub
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	authService, err := auth.NewService("12345678901234567890123456789012", "admin", string(hash), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	gens := generators.NewManager(func(animation.Event) {}, logger)
	if err := gens.Add(generators.NewMIDI("/dev/null")); err != nil {
		t.Fatal(err)
	}

	ctrl := &fakeController{
		schema: []animation.ParameterSchema{
			{ID: "brightness", Name: "Brightness", Type: animation.TypeFloat, Min: animation.Bound(0), Max: animation.Bound(1), Default: json.RawMessage("1")},
		},
	}
	hub := light.NewHub(logger)
	deps := &common.Dependencies{
		Controller: ctrl,
		Plugins: fakeCatalog{
			{Manifest: plugins.Manifest{ID: "diagnostic", Name: "Diagnostic", Capabilities: []plugins.Capability{plugins.CapabilityAnimation}}},
		},
		Generators: gens,
		Bus:        eventbus.New(8, logger),
		Preview:    hub,
		Auth:       authService,
		Logger:     logger,
	}

	srv := httptest.NewServer(NewRouter(deps, config.CORSConfig{}))
	t.Cleanup(srv.Close)

	env := &testEnv{server: srv, ctrl: ctrl, hub: hub}
	resp := env.do(t, http.MethodPost, "/api/v1/login", `{"username":"admin","password":"admin"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var login auth.LoginResponse
	decode(t, resp, &login)
	env.token = login.Token
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthHandler(t *testing.T) {
	env := setupTest(t)
	env.token = ""

	resp := env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var h HealthResponse
	decode(t, resp, &h)
	if h.Status != "ok" {
		t.Errorf("expected status ok, got %s", h.Status)
	}

	if resp := env.do(t, http.MethodGet, "/ready", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("ready: expected 200, got %d", resp.StatusCode)
	}
}

func TestLogin_Rejects(t *testing.T) {
	env := setupTest(t)
	env.token = ""

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing password", `{"username":"admin"}`, http.StatusBadRequest},
		{"wrong password", `{"username":"admin","password":"x"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/v1/login", tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var e middleware.ErrorResponse
			decode(t, resp, &e)
			if e.Error.Code == "" || e.Error.RequestID == "" {
				t.Errorf("unexpected error envelope %+v", e)
			}
		})
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupTest(t)
	env.token = ""
	for _, path := range []string{"/api/v1/status", "/api/v1/plugins", "/api/v1/generators", "/ws/preview"} {
		if resp := env.do(t, http.MethodGet, path, ""); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestAnimationLifecycle(t *testing.T) {
	env := setupTest(t)

	if resp := env.do(t, http.MethodGet, "/api/v1/animation/schema", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("schema without animation: status = %d, want 409", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/v1/animation/respawn", ""); resp.StatusCode != http.StatusConflict {
		t.Errorf("respawn without animation: status = %d, want 409", resp.StatusCode)
	}

	if resp := env.do(t, http.MethodPut, "/api/v1/animation", `{"id":"missing"}`); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown plugin: status = %d, want 404", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPut, "/api/v1/animation", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing id: status = %d, want 400", resp.StatusCode)
	}

	resp := env.do(t, http.MethodPut, "/api/v1/animation", `{"id":"diagnostic"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("select: status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/animation/schema", "")
	var schema []animation.ParameterSchema
	decode(t, resp, &schema)
	if len(schema) != 1 || schema[0].ID != "brightness" {
		t.Errorf("unexpected schema %+v", schema)
	}

	resp = env.do(t, http.MethodPut, "/api/v1/animation/parameters", `{"brightness":0.25}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("set parameters: status = %d", resp.StatusCode)
	}
	if len(env.ctrl.applied) != 1 || env.ctrl.applied[0]["brightness"].Float() != 0.25 {
		t.Errorf("applied = %v", env.ctrl.applied)
	}

	for _, body := range []string{`{"brightness":2}`, `{"unknown":1}`, `{"brightness":"high"}`} {
		resp = env.do(t, http.MethodPut, "/api/v1/animation/parameters", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, resp.StatusCode)
		}
	}

	resp = env.do(t, http.MethodGet, "/api/v1/animation/parameters", "")
	var vs map[string]float64
	decode(t, resp, &vs)
	if vs["brightness"] != 1 {
		t.Errorf("parameters = %v", vs)
	}

	if resp := env.do(t, http.MethodPost, "/api/v1/animation/restart", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("restart: status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/plugins", "")
	var list struct {
		Data  []json.RawMessage `json:"data"`
		Total int               `json:"total"`
	}
	decode(t, resp, &list)
	if list.Total != 1 || !strings.Contains(string(list.Data[0]), `"active":true`) {
		t.Errorf("plugins = %+v", list)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/status", "")
	var status struct {
		Scheduler scheduler.Status `json:"scheduler"`
		EventBus  *eventbus.Stats  `json:"eventbus"`
	}
	decode(t, resp, &status)
	if status.Scheduler.Animation != "diagnostic" || status.EventBus == nil {
		t.Errorf("status = %+v", status)
	}
}

func TestGenerators(t *testing.T) {
	env := setupTest(t)

	resp := env.do(t, http.MethodGet, "/api/v1/generators", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status = %d", resp.StatusCode)
	}

	if resp := env.do(t, http.MethodGet, "/api/v1/generators/nope/parameters", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown generator: status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPut, "/api/v1/generators/midi/parameters", `{"channel":3}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set: status = %d", resp.StatusCode)
	}
	var vs map[string]int
	decode(t, resp, &vs)
	if vs["channel"] != 3 {
		t.Errorf("channel = %v", vs)
	}

	if resp := env.do(t, http.MethodPut, "/api/v1/generators/midi/parameters", `{"channel":99}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("out of range: status = %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/v1/generators/midi/restart", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("restart: status = %d", resp.StatusCode)
	}
}

func TestPreviewWebsocket(t *testing.T) {
	env := setupTest(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/preview?token=" + env.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("preview client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := env.hub.Render(context.Background(), animation.NewFrame(3)); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f animation.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Len() != 3 {
		t.Errorf("frame length = %d", f.Len())
	}
}
