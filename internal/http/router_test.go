package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atelierhq/atelier/internal/bridge"
	"github.com/atelierhq/atelier/internal/domain"
	"github.com/atelierhq/atelier/internal/repository"
	"github.com/atelierhq/atelier/internal/service/lifecycle"
	"github.com/atelierhq/atelier/internal/ws"
)

const testToken = "orch-secret"

type fakeLifecycle struct {
	resources map[string]*domain.ManagedResource
	stopErr   error
}

func (f *fakeLifecycle) Create(_ context.Context, spec lifecycle.CreateSpec) (*domain.ManagedResource, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: name required", lifecycle.ErrValidation)
	}
	res := &domain.ManagedResource{
		ID: "res-1", OwnerID: spec.OwnerID, Name: spec.Name, Type: spec.Type,
		Status: domain.StatusRunning, HostPort: 40000, ContainerID: "ctr-1",
	}
	f.resources[res.ID] = res
	return res, nil
}

func (f *fakeLifecycle) Start(_ context.Context, id string) (*domain.ManagedResource, error) {
	res, ok := f.resources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	res.Status = domain.StatusRunning
	return res, nil
}

func (f *fakeLifecycle) Stop(_ context.Context, id string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	res, ok := f.resources[id]
	if !ok {
		return repository.ErrNotFound
	}
	res.Status = domain.StatusStopped
	return nil
}

func (f *fakeLifecycle) Delete(_ context.Context, id string, _ bool) error {
	if _, ok := f.resources[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.resources, id)
	return nil
}

func (f *fakeLifecycle) Get(_ context.Context, id string) (*domain.ManagedResource, error) {
	res, ok := f.resources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return res, nil
}

func (f *fakeLifecycle) List(_ context.Context, ownerID string) ([]domain.ManagedResource, error) {
	var out []domain.ManagedResource
	for _, res := range f.resources {
		if res.OwnerID == ownerID {
			out = append(out, *res)
		}
	}
	return out, nil
}

type fakeExecutor struct {
	lastType string
	result   []byte
	err      error
}

func (f *fakeExecutor) Execute(_ context.Context, _ string, _ int, cmdType string, _ []byte) ([]byte, error) {
	f.lastType = cmdType
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakePortLister struct{ leases []domain.PortLease }

func (f *fakePortLister) Leases() []domain.PortLease { return f.leases }

func newTestRouter(t *testing.T) (*Router, *fakeLifecycle, *fakeExecutor) {
	t.Helper()
	svc := &fakeLifecycle{resources: make(map[string]*domain.ManagedResource)}
	exec := &fakeExecutor{result: []byte(`{"ok":true}`)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(logger, svc, exec, &fakePortLister{}, ws.NewHub(), nil, testToken, nil, nil)
	t.Cleanup(r.Close)
	return r, svc, exec
}

func doRequest(r *Router, method, path string, body any, withToken bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if withToken {
		req.Header.Set("X-Internal-Token", testToken)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestInternalTokenGuard(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := doRequest(r, http.MethodGet, "/v1/resources?owner_id=o1", nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no-token status = %d, want 401", rec.Code)
	}
	rec = doRequest(r, http.MethodGet, "/v1/resources?owner_id=o1", nil, true)
	if rec.Code != http.StatusOK {
		t.Errorf("with-token status = %d, want 200", rec.Code)
	}
}

func TestCreateResourceEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := doRequest(r, http.MethodPost, "/v1/resources", map[string]any{
		"owner_id": "o1", "name": "my-space", "type": "workspace",
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if payload["id"] != "res-1" || payload["status"] != "running" {
		t.Errorf("payload = %v", payload)
	}
}

func TestCreateValidationMapsTo400(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := doRequest(r, http.MethodPost, "/v1/resources", map[string]any{"owner_id": "o1"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetMissingResourceMapsTo404(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := doRequest(r, http.MethodGet, "/v1/resources/nope", nil, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestInvalidStateMapsTo409(t *testing.T) {
	r, svc, _ := newTestRouter(t)
	svc.resources["res-1"] = &domain.ManagedResource{ID: "res-1", Status: domain.StatusStopped}
	svc.stopErr = fmt.Errorf("%w: cannot stop stopped", lifecycle.ErrInvalidState)
	rec := doRequest(r, http.MethodPost, "/v1/resources/res-1/stop", nil, true)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestCommandEndpoint(t *testing.T) {
	r, svc, exec := newTestRouter(t)
	svc.resources["res-1"] = &domain.ManagedResource{
		ID: "res-1", Type: domain.ResourceWorkspace,
		Status: domain.StatusRunning, HostPort: 40000,
	}
	rec := doRequest(r, http.MethodPost, "/v1/resources/res-1/commands", map[string]any{
		"type": bridge.CmdShellExec, "payload": map[string]string{"command": "ls"},
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if exec.lastType != bridge.CmdShellExec {
		t.Errorf("executed type = %s", exec.lastType)
	}
	var payload struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil || !payload.Success {
		t.Errorf("payload = %s, err = %v", rec.Body.String(), err)
	}
}

func TestCommandTimeoutMapsTo504(t *testing.T) {
	r, svc, exec := newTestRouter(t)
	svc.resources["res-1"] = &domain.ManagedResource{
		ID: "res-1", Type: domain.ResourceWorkspace,
		Status: domain.StatusRunning, HostPort: 40000,
	}
	exec.err = bridge.ErrCommandTimeout
	rec := doRequest(r, http.MethodPost, "/v1/resources/res-1/commands", map[string]any{
		"type": bridge.CmdShellExec,
	}, true)
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestCommandOnDatabaseRejected(t *testing.T) {
	r, svc, _ := newTestRouter(t)
	svc.resources["res-1"] = &domain.ManagedResource{
		ID: "res-1", Type: domain.ResourceDatabase,
		Status: domain.StatusRunning, HostPort: 40000,
	}
	rec := doRequest(r, http.MethodPost, "/v1/resources/res-1/commands", map[string]any{
		"type": bridge.CmdShellExec,
	}, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPortsEndpoint(t *testing.T) {
	svc := &fakeLifecycle{resources: make(map[string]*domain.ManagedResource)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lister := &fakePortLister{leases: []domain.PortLease{{Port: 40000, ResourceID: "res-1"}}}
	r := NewRouter(logger, svc, &fakeExecutor{}, lister, ws.NewHub(), nil, testToken, nil, nil)
	defer r.Close()

	rec := doRequest(r, http.MethodGet, "/v1/ports", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(out) != 1 || out[0]["resource_id"] != "res-1" {
		t.Errorf("ports = %v", out)
	}
}

func TestHealthzOpen(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := doRequest(r, http.MethodGet, "/healthz", nil, false)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200 without token", rec.Code)
	}
}
