package httpx

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelierhq/atelier/internal/bridge"
	"github.com/atelierhq/atelier/internal/domain"
	"github.com/atelierhq/atelier/internal/netport"
	"github.com/atelierhq/atelier/internal/repository"
	"github.com/atelierhq/atelier/internal/service/lifecycle"
	"github.com/atelierhq/atelier/internal/subdomain"
	"github.com/atelierhq/atelier/internal/ws"
)

// LifecycleService is the resource orchestration surface the router exposes.
type LifecycleService interface {
	Create(ctx context.Context, spec lifecycle.CreateSpec) (*domain.ManagedResource, error)
	Start(ctx context.Context, resourceID string) (*domain.ManagedResource, error)
	Stop(ctx context.Context, resourceID string) error
	Delete(ctx context.Context, resourceID string, deleteVolume bool) error
	Get(ctx context.Context, resourceID string) (*domain.ManagedResource, error)
	List(ctx context.Context, ownerID string) ([]domain.ManagedResource, error)
}

// CommandExecutor forwards a command to the agent inside a resource.
type CommandExecutor interface {
	Execute(ctx context.Context, resourceID string, port int, cmdType string, payload []byte) ([]byte, error)
}

// PortLister snapshots the live port ledger.
type PortLister interface {
	Leases() []domain.PortLease
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux           *http.ServeMux
	logger        *slog.Logger
	lifecycle     LifecycleService
	bridge        CommandExecutor
	ports         PortLister
	hub           *ws.Hub
	upgrader      websocket.Upgrader
	limiter       RateLimiter
	internalToken string
	dbHealth      func(context.Context) error
	runtimeHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitWrite     = 60
	rateLimitRead      = 240
	rateLimitCommands  = 600
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, lifecycleSvc LifecycleService, commandBridge CommandExecutor, ports PortLister, hub *ws.Hub, limiter RateLimiter, internalToken string, dbHealth, runtimeHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		lifecycle: lifecycleSvc,
		bridge:    commandBridge,
		ports:     ports,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:       limiter,
		internalToken: strings.TrimSpace(internalToken),
		dbHealth:      dbHealth,
		runtimeHealth: runtimeHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/v1/resources", r.audit("resources", r.internalOnly(r.withRateLimit("resources", rateLimitWrite, rateWindowDefault, r.handleResources))))
	r.mux.HandleFunc("/v1/resources/", r.audit("resource", r.internalOnly(r.handleResourceSubroutes)))
	r.mux.HandleFunc("/v1/ports", r.audit("ports", r.internalOnly(r.withRateLimit("ports", rateLimitRead, rateWindowDefault, r.handlePorts))))
	r.mux.HandleFunc("/ws/events", r.audit("events_ws", r.internalOnly(r.withRateLimit("events_ws", rateLimitWebsocket, rateWindowRealtime, r.handleEventsWS))))
}

func (r *Router) handleResources(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			OwnerID      string            `json:"owner_id"`
			TeamID       string            `json:"team_id"`
			ParentID     *string           `json:"parent_id"`
			Name         string            `json:"name"`
			Type         string            `json:"type"`
			Image        string            `json:"image"`
			Env          map[string]string `json:"env"`
			DirectAccess bool              `json:"direct_access"`
			Route        *struct {
				DomainID   string `json:"domain_id"`
				Subdomain  string `json:"subdomain"`
				CustomHost string `json:"custom_host"`
			} `json:"route"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		spec := lifecycle.CreateSpec{
			OwnerID:      payload.OwnerID,
			TeamID:       payload.TeamID,
			ParentID:     payload.ParentID,
			Name:         payload.Name,
			Type:         domain.ResourceType(payload.Type),
			Image:        payload.Image,
			Env:          payload.Env,
			DirectAccess: payload.DirectAccess,
		}
		if payload.Route != nil {
			spec.Route = &lifecycle.RouteRequest{
				DomainID:   payload.Route.DomainID,
				Subdomain:  payload.Route.Subdomain,
				CustomHost: payload.Route.CustomHost,
			}
		}
		res, err := r.lifecycle.Create(req.Context(), spec)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, resourcePayload(res))
	case http.MethodGet:
		ownerID := strings.TrimSpace(req.URL.Query().Get("owner_id"))
		if ownerID == "" {
			writeError(w, http.StatusBadRequest, "owner_id query parameter required")
			return
		}
		list, err := r.lifecycle.List(req.Context(), ownerID)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		out := make([]map[string]any, 0, len(list))
		for i := range list {
			out = append(out, resourcePayload(&list[i]))
		}
		writeJSON(w, http.StatusOK, out)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleResourceSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/v1/resources/")
	parts := strings.Split(trimmed, "/")
	resourceID := parts[0]
	if resourceID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.withRateLimit("resource", rateLimitWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleResource(w, req, resourceID)
		})(w, req)
	case len(parts) == 2 && parts[1] == "start":
		r.withRateLimit("resource_start", rateLimitWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleResourceStart(w, req, resourceID)
		})(w, req)
	case len(parts) == 2 && parts[1] == "stop":
		r.withRateLimit("resource_stop", rateLimitWrite, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleResourceStop(w, req, resourceID)
		})(w, req)
	case len(parts) == 2 && parts[1] == "commands":
		r.withRateLimit("resource_commands", rateLimitCommands, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
			r.handleResourceCommand(w, req, resourceID)
		})(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleResource(w http.ResponseWriter, req *http.Request, resourceID string) {
	switch req.Method {
	case http.MethodGet:
		res, err := r.lifecycle.Get(req.Context(), resourceID)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resourcePayload(res))
	case http.MethodDelete:
		deleteVolume := req.URL.Query().Get("delete_volume") == "true"
		if err := r.lifecycle.Delete(req.Context(), resourceID, deleteVolume); err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleResourceStart(w http.ResponseWriter, req *http.Request, resourceID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	res, err := r.lifecycle.Start(req.Context(), resourceID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resourcePayload(res))
}

func (r *Router) handleResourceStop(w http.ResponseWriter, req *http.Request, resourceID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if err := r.lifecycle.Stop(req.Context(), resourceID); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (r *Router) handleResourceCommand(w http.ResponseWriter, req *http.Request, resourceID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := r.lifecycle.Get(req.Context(), resourceID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if res.Type != domain.ResourceWorkspace {
		writeError(w, http.StatusBadRequest, "commands are only supported for workspaces")
		return
	}
	if res.Status != domain.StatusRunning || res.HostPort == 0 {
		writeError(w, http.StatusConflict, "workspace is not running")
		return
	}
	data, err := r.bridge.Execute(req.Context(), res.ID, res.HostPort, payload.Type, payload.Payload)
	if err != nil {
		var cmdErr *bridge.CommandError
		if errors.As(err, &cmdErr) {
			// The agent executed the command and reported failure.
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": cmdErr.Message})
			return
		}
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": json.RawMessage(data)})
}

func (r *Router) handlePorts(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	leases := r.ports.Leases()
	out := make([]map[string]any, 0, len(leases))
	for _, lease := range leases {
		out = append(out, map[string]any{
			"port":        lease.Port,
			"resource_id": lease.ResourceID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	topic := strings.TrimSpace(req.URL.Query().Get("resource_id"))
	if topic == "" {
		topic = ws.TopicAll
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(topic, client)
	go func() {
		defer func() {
			r.hub.Unregister(topic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	check := func(name string, fn func(context.Context) error) {
		if fn == nil {
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			status = "degraded"
			components[name] = map[string]any{"status": "down", "error": err.Error()}
			return
		}
		components[name] = map[string]any{"status": "up"}
	}
	check("database", r.dbHealth)
	check("container_runtime", r.runtimeHealth)

	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func resourcePayload(res *domain.ManagedResource) map[string]any {
	payload := map[string]any{
		"id":            res.ID,
		"owner_id":      res.OwnerID,
		"name":          res.Name,
		"type":          res.Type,
		"status":        res.Status,
		"direct_access": res.DirectAccess,
		"created_at":    res.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    res.UpdatedAt.Format(time.RFC3339Nano),
	}
	if res.TeamID != "" {
		payload["team_id"] = res.TeamID
	}
	if res.ParentID != nil {
		payload["parent_id"] = *res.ParentID
	}
	if res.HostPort > 0 {
		payload["host_port"] = res.HostPort
	}
	if res.ContainerID != "" {
		payload["container_id"] = res.ContainerID
	}
	if res.VolumeName != "" {
		payload["volume_name"] = res.VolumeName
	}
	if res.LastError != "" {
		payload["last_error"] = res.LastError
	}
	return payload
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrValidation), errors.Is(err, bridge.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, netport.ErrExhausted), errors.Is(err, subdomain.ErrExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, bridge.ErrCommandTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, bridge.ErrConnectionLost):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// internalOnly ensures requests carry the configured control-plane token.
func (r *Router) internalOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		expected := r.internalToken
		if expected == "" {
			r.logger.Error("internal token not configured", "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "internal authentication misconfigured")
			return
		}
		token := strings.TrimSpace(req.Header.Get("X-Internal-Token"))
		if token == "" {
			token = strings.TrimSpace(req.URL.Query().Get("internal_token"))
		}
		if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			r.logger.Warn("internal token mismatch", "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid internal token")
			return
		}
		next(w, req)
	}
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
		r.recordRequestMetrics(req.Method, route, status, duration)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
