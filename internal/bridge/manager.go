package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens the websocket transport to a resource's agent endpoint.
type Dialer func(ctx context.Context, resourceID string, port int) (*websocket.Conn, error)

// Manager caches one bridge connection per resource. Concurrent Connect
// calls for the same resource share a single dial via a connecting-state
// guard instead of racing duplicate sockets.
type Manager struct {
	timeout time.Duration
	dial    Dialer
	log     *slog.Logger

	mu    sync.Mutex
	conns map[string]*connEntry
}

type connEntry struct {
	ready chan struct{}
	conn  *Conn
	err   error
}

// NewManager constructs a Manager dialing agents on the loopback-published
// host port.
func NewManager(timeout time.Duration, log *slog.Logger) *Manager {
	m := &Manager{
		timeout: timeout,
		log:     log,
		conns:   make(map[string]*connEntry),
	}
	m.dial = func(ctx context.Context, _ string, port int) (*websocket.Conn, error) {
		url := fmt.Sprintf("ws://127.0.0.1:%d/agent", port)
		ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return ws, err
	}
	return m
}

// Connect returns the cached connection for a resource, or opens one. On
// transport failure the cache entry is evicted, so a later Connect redials.
func (m *Manager) Connect(ctx context.Context, resourceID string, port int) (*Conn, error) {
	m.mu.Lock()
	if entry, ok := m.conns[resourceID]; ok {
		m.mu.Unlock()
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.conn, nil
	}

	entry := &connEntry{ready: make(chan struct{})}
	m.conns[resourceID] = entry
	m.mu.Unlock()

	ws, err := m.dial(ctx, resourceID, port)
	if err != nil {
		entry.err = fmt.Errorf("dial agent for %s: %w", resourceID, err)
		close(entry.ready)
		m.evict(resourceID, entry)
		return nil, entry.err
	}

	entry.conn = newConn(resourceID, ws, m.timeout, m.log, func() {
		m.evict(resourceID, entry)
	})
	close(entry.ready)
	m.log.Info("bridge connected", "resource_id", resourceID, "port", port)
	return entry.conn, nil
}

// Execute is a connect-and-send convenience for callers holding only the
// resource identity.
func (m *Manager) Execute(ctx context.Context, resourceID string, port int, cmdType string, payload []byte) ([]byte, error) {
	conn, err := m.Connect(ctx, resourceID, port)
	if err != nil {
		return nil, err
	}
	return conn.Execute(ctx, cmdType, payload)
}

// Disconnect closes and evicts the resource's connection if one exists.
func (m *Manager) Disconnect(resourceID string) {
	m.mu.Lock()
	entry, ok := m.conns[resourceID]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-entry.ready:
	default:
		return
	}
	if entry.conn != nil {
		entry.conn.Close()
	}
}

// Shutdown closes every live connection. Pending commands fail with
// ErrConnectionLost.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	entries := make([]*connEntry, 0, len(m.conns))
	for _, entry := range m.conns {
		entries = append(entries, entry)
	}
	m.mu.Unlock()
	for _, entry := range entries {
		select {
		case <-entry.ready:
			if entry.conn != nil {
				entry.conn.Close()
			}
		default:
		}
	}
}

func (m *Manager) evict(resourceID string, entry *connEntry) {
	m.mu.Lock()
	if current, ok := m.conns[resourceID]; ok && current == entry {
		delete(m.conns, resourceID)
	}
	m.mu.Unlock()
}
