package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type agentConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (a *agentConn) reply(resp Response) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ws.WriteJSON(resp)
}

// fakeAgent is an in-process stand-in for the execution helper that runs
// inside a workspace container.
type fakeAgent struct {
	srv *httptest.Server

	mu      sync.Mutex
	handler func(conn *agentConn, req Request)
	dials   int
}

func newFakeAgent(handler func(conn *agentConn, req Request)) *fakeAgent {
	a := &fakeAgent{handler: handler}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		a.mu.Lock()
		a.dials++
		a.mu.Unlock()
		conn := &agentConn{ws: ws}
		for {
			var req Request
			if err := ws.ReadJSON(&req); err != nil {
				return
			}
			// Each command is handled independently so a slow one
			// never blocks the others.
			go a.currentHandler()(conn, req)
		}
	}))
	return a
}

func (a *fakeAgent) currentHandler() func(conn *agentConn, req Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handler
}

func (a *fakeAgent) setHandler(handler func(conn *agentConn, req Request)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
}

func (a *fakeAgent) dialCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dials
}

func (a *fakeAgent) close() {
	a.srv.Close()
}

func testManager(t *testing.T, agent *fakeAgent, timeout time.Duration) *Manager {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	m := NewManager(timeout, log)
	m.dial = func(ctx context.Context, _ string, _ int) (*websocket.Conn, error) {
		url := "ws" + strings.TrimPrefix(agent.srv.URL, "http")
		ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return ws, err
	}
	return m
}

func echoAgent(conn *agentConn, req Request) {
	_ = conn.reply(Response{ID: req.ID, Success: true, Data: req.Payload})
}

func TestExecuteRoundTrip(t *testing.T) {
	agent := newFakeAgent(echoAgent)
	defer agent.close()
	m := testManager(t, agent, 5*time.Second)

	payload := []byte(`{"path":"/workspace/main.go"}`)
	data, err := m.Execute(context.Background(), "res-1", 0, CmdFileRead, payload)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("expected echoed payload, got %s", data)
	}
}

func TestConcurrentCommandsCorrelateIndependently(t *testing.T) {
	// Replies are delayed inversely to the request index, so responses
	// arrive in roughly reverse order of the requests.
	agent := newFakeAgent(func(conn *agentConn, req Request) {
		var p struct {
			Index int `json:"index"`
		}
		_ = json.Unmarshal(req.Payload, &p)
		time.Sleep(time.Duration(20-p.Index) * 5 * time.Millisecond)
		_ = conn.reply(Response{ID: req.ID, Success: true, Data: req.Payload})
	})
	defer agent.close()
	m := testManager(t, agent, 5*time.Second)

	const commands = 20
	var wg sync.WaitGroup
	errCh := make(chan error, commands)
	for i := 0; i < commands; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf(`{"index":%d}`, index))
			data, err := m.Execute(context.Background(), "res-1", 0, CmdShellExec, payload)
			if err != nil {
				errCh <- fmt.Errorf("command %d: %w", index, err)
				return
			}
			if string(data) != string(payload) {
				errCh <- fmt.Errorf("command %d got cross-talk response %s", index, data)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func TestCommandTimeoutDiscardsLateReply(t *testing.T) {
	release := make(chan struct{})
	agent := newFakeAgent(func(conn *agentConn, req Request) {
		if req.Type == CmdShellExec {
			<-release
		}
		_ = conn.reply(Response{ID: req.ID, Success: true, Data: req.Payload})
	})
	defer agent.close()
	m := testManager(t, agent, 100*time.Millisecond)

	_, err := m.Execute(context.Background(), "res-1", 0, CmdShellExec, []byte(`{"command":"sleep 60"}`))
	if !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("expected ErrCommandTimeout, got %v", err)
	}

	// Let the stale reply arrive; it must be dropped without disturbing
	// the connection or resolving anything.
	close(release)
	time.Sleep(50 * time.Millisecond)

	data, err := m.Execute(context.Background(), "res-1", 0, CmdFileList, []byte(`{"path":"/"}`))
	if err != nil {
		t.Fatalf("command after late reply returned error: %v", err)
	}
	if string(data) != `{"path":"/"}` {
		t.Fatalf("unexpected data after late reply: %s", data)
	}
	if agent.dialCount() != 1 {
		t.Fatalf("late reply must not tear down the connection, dials = %d", agent.dialCount())
	}
}

func TestConnectionLossFailsPendingCommands(t *testing.T) {
	agent := newFakeAgent(func(conn *agentConn, req Request) {
		_ = conn.ws.Close()
	})
	defer agent.close()
	m := testManager(t, agent, 5*time.Second)

	_, err := m.Execute(context.Background(), "res-1", 0, CmdShellExec, []byte(`{}`))
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("expected ErrConnectionLost, got %v", err)
	}

	// The cache entry was evicted, so the next Execute redials.
	agent.setHandler(echoAgent)
	if _, err := m.Execute(context.Background(), "res-1", 0, CmdFileRead, []byte(`{}`)); err != nil {
		t.Fatalf("Execute after reconnect returned error: %v", err)
	}
	if agent.dialCount() != 2 {
		t.Fatalf("expected redial after connection loss, dials = %d", agent.dialCount())
	}
}

func TestConnectDedupesConcurrentCalls(t *testing.T) {
	agent := newFakeAgent(echoAgent)
	defer agent.close()
	m := testManager(t, agent, 5*time.Second)

	var dials int
	var dialMu sync.Mutex
	inner := m.dial
	m.dial = func(ctx context.Context, resourceID string, port int) (*websocket.Conn, error) {
		dialMu.Lock()
		dials++
		dialMu.Unlock()
		time.Sleep(20 * time.Millisecond)
		return inner(ctx, resourceID, port)
	}

	const callers = 8
	conns := make([]*Conn, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := m.Connect(context.Background(), "res-1", 0)
			if err != nil {
				t.Errorf("Connect %d returned error: %v", i, err)
				return
			}
			conns[i] = conn
		}(i)
	}
	wg.Wait()

	dialMu.Lock()
	got := dials
	dialMu.Unlock()
	if got != 1 {
		t.Fatalf("expected a single dial across concurrent connects, got %d", got)
	}
	for i := 1; i < callers; i++ {
		if conns[i] != conns[0] {
			t.Fatalf("Connect %d returned a different connection", i)
		}
	}
}

func TestExecuteRejectsUnknownCommandType(t *testing.T) {
	agent := newFakeAgent(echoAgent)
	defer agent.close()
	m := testManager(t, agent, time.Second)

	_, err := m.Execute(context.Background(), "res-1", 0, "disk.format", nil)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestExecuteSurfacesAgentErrors(t *testing.T) {
	agent := newFakeAgent(func(conn *agentConn, req Request) {
		_ = conn.reply(Response{ID: req.ID, Success: false, Error: "no such file"})
	})
	defer agent.close()
	m := testManager(t, agent, time.Second)

	_, err := m.Execute(context.Background(), "res-1", 0, CmdFileRead, []byte(`{"path":"/missing"}`))
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.Type != CmdFileRead || cmdErr.Message != "no such file" {
		t.Fatalf("unexpected command error: %+v", cmdErr)
	}
}
