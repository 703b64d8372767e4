package permission

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gm-agent-org/gm-genai/pkg/tool"
)

var (
	ErrRequestNotFound = errors.New("permission request not found")
	ErrTimeout         = errors.New("permission request timed out")
)

// Response represents the user's decision
type Response struct {
	Approved bool
	// Always approves every later call of the same tool.
	Always bool
}

type pending struct {
	req tool.PermissionRequest
	ch  chan Response
}

// Manager handles pending permission requests
type Manager struct {
	mu      sync.Mutex
	pending map[string]*pending
	always  map[string]bool
	log     *slog.Logger
}

func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		pending: make(map[string]*pending),
		always:  make(map[string]bool),
		log:     log,
	}
}

// Request registers req and returns a channel to wait on.
// The caller MUST ensure WaitForResponse or Cancel is called.
func (m *Manager) Request(req tool.PermissionRequest) <-chan Response {
	ch := make(chan Response, 1) // Buffered to prevent blocking the sender
	m.mu.Lock()
	m.pending[req.RequestID] = &pending{req: req, ch: ch}
	m.mu.Unlock()
	return ch
}

// Pending lists the requests still waiting for a decision, oldest first.
func (m *Manager) Pending() []tool.PermissionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tool.PermissionRequest, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p.req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out
}

// Respond sends a response to a pending request
func (m *Manager) Respond(id string, approved bool, always bool) error {
	m.mu.Lock()
	p, ok := m.pending[id]
	if ok && approved && always {
		m.always[p.req.ToolName] = true
	}
	m.mu.Unlock()
	if !ok {
		return ErrRequestNotFound
	}

	select {
	case p.ch <- Response{Approved: approved, Always: always}:
		return nil
	default:
		return errors.New("failed to send response: request already answered")
	}
}

// Cancel forgets a request without answering it.
func (m *Manager) Cancel(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// WaitForResponse waits for a response with a timeout
func (m *Manager) WaitForResponse(ctx context.Context, id string, timeout time.Duration) (Response, error) {
	m.mu.Lock()
	p, ok := m.pending[id]
	m.mu.Unlock()
	if !ok {
		return Response{}, ErrRequestNotFound
	}
	defer m.Cancel(id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-p.ch:
		return resp, nil
	case <-timer.C:
		return Response{}, ErrTimeout
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Callback adapts the manager to tool.Executor. Calls wait up to timeout for
// a decision; tools approved with Always skip the wait.
func (m *Manager) Callback(timeout time.Duration) tool.PermissionCallback {
	return func(ctx context.Context, req tool.PermissionRequest) (bool, error) {
		m.mu.Lock()
		always := m.always[req.ToolName]
		m.mu.Unlock()
		if always {
			return true, nil
		}

		m.Request(req)
		m.log.Info("permission requested", "request_id", req.RequestID, "tool", req.ToolName)
		resp, err := m.WaitForResponse(ctx, req.RequestID, timeout)
		if err != nil {
			m.log.Warn("permission request failed", "request_id", req.RequestID, "error", err)
			return false, err
		}
		return resp.Approved, nil
	}
}
