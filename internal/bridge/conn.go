package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrConnectionLost indicates the transport failed; every command that
	// was in flight on the connection fails with it.
	ErrConnectionLost = errors.New("bridge: connection lost")
	// ErrCommandTimeout indicates no reply arrived within the command
	// timeout. A late reply for the same id is discarded silently.
	ErrCommandTimeout = errors.New("bridge: command timed out")
	// ErrUnknownCommand indicates a command type the bridge does not route.
	ErrUnknownCommand = errors.New("bridge: unknown command type")
)

// Conn is one bridge connection into a running workspace container. Multiple
// commands may be in flight concurrently; replies are correlated by request
// id, so response order is independent of request order.
type Conn struct {
	resourceID string
	ws         *websocket.Conn
	timeout    time.Duration
	log        *slog.Logger
	onClose    func()

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool

	done chan struct{}
}

func newConn(resourceID string, ws *websocket.Conn, timeout time.Duration, log *slog.Logger, onClose func()) *Conn {
	c := &Conn{
		resourceID: resourceID,
		ws:         ws,
		timeout:    timeout,
		log:        log,
		onClose:    onClose,
		pending:    make(map[string]chan Response),
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Execute sends one command and waits for its correlated reply. There is no
// mid-flight cancellation on the agent side: abandoning a shell.exec here
// leaves the process running in the container.
func (c *Conn) Execute(ctx context.Context, cmdType string, payload []byte) ([]byte, error) {
	if !KnownCommand(cmdType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmdType)
	}

	id := newRequestID()
	ch := make(chan Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionLost
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := Request{ID: id, Type: cmdType, Payload: payload}
	c.writeMu.Lock()
	err := c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("%w: write %s: %v", ErrConnectionLost, cmdType, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resolve(cmdType, resp)
	case <-c.done:
		// A reply may have raced the teardown.
		select {
		case resp := <-ch:
			return resolve(cmdType, resp)
		default:
		}
		c.removePending(id)
		return nil, ErrConnectionLost
	case <-timer.C:
		c.removePending(id)
		return nil, fmt.Errorf("%s after %s: %w", cmdType, c.timeout, ErrCommandTimeout)
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

func resolve(cmdType string, resp Response) ([]byte, error) {
	if !resp.Success {
		return nil, &CommandError{Type: cmdType, Message: resp.Error}
	}
	return resp.Data, nil
}

// Close tears the connection down, failing all pending commands.
func (c *Conn) Close() {
	c.teardown()
	_ = c.ws.Close()
}

func (c *Conn) readLoop() {
	for {
		var resp Response
		if err := c.ws.ReadJSON(&resp); err != nil {
			c.log.Warn("bridge connection closed", "resource_id", c.resourceID, "error", err)
			c.teardown()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if !ok {
			// Late reply for a timed-out or unknown id; never a
			// connection error.
			c.log.Debug("discarding unmatched bridge reply", "resource_id", c.resourceID, "id", resp.ID)
			continue
		}
		ch <- resp
	}
}

func (c *Conn) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = make(map[string]chan Response)
	c.mu.Unlock()

	// Evict from the manager cache before waking waiters so a follow-up
	// Connect never observes the dead entry.
	if c.onClose != nil {
		c.onClose()
	}
	close(c.done)
}
