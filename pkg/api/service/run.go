package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gm-agent-org/gm-genai/pkg/api/dto"
	"github.com/gm-agent-org/gm-genai/pkg/patch"
	"github.com/gm-agent-org/gm-genai/pkg/runtime"
	"github.com/gm-agent-org/gm-genai/pkg/runtime/permission"
	"github.com/gm-agent-org/gm-genai/pkg/store"
	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

var (
	// ErrRunNotFound is returned when a run is neither active nor stored.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRunActive is returned when an ID is reused while its run is going.
	ErrRunActive = errors.New("run already active")
)

// Runner is the minimal runtime contract the service relies on.
type Runner interface {
	Run(ctx context.Context, sess *runtime.Session) (*types.RunResult, error)
}

// Run is a run started through the service and still in progress.
type Run struct {
	ID        string
	Status    types.Status
	CreatedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// RunService executes sessions and serves their stored results.
type RunService struct {
	runner      Runner
	store       store.Store
	patches     patch.Engine
	permissions *permission.Manager

	active sync.Map // map[string]*Run
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewRunService creates a RunService. patches and permissions may be nil.
func NewRunService(runner Runner, s store.Store, patches patch.Engine, permissions *permission.Manager, log *slog.Logger) *RunService {
	if log == nil {
		log = slog.Default()
	}
	return &RunService{
		runner:      runner,
		store:       s,
		patches:     patches,
		permissions: permissions,
		log:         log,
	}
}

// Run executes req and waits for the result.
func (s *RunService) Run(ctx context.Context, req dto.RunRequest) (*dto.RunResponse, error) {
	sess, err := NewSession(req)
	if err != nil {
		return nil, err
	}
	run, err := s.track(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return s.execute(run, sess, req.Apply)
}

// Start executes req in the background.
func (s *RunService) Start(ctx context.Context, req dto.RunRequest) (*Run, error) {
	sess, err := NewSession(req)
	if err != nil {
		return nil, err
	}
	// the run outlives the request that started it
	run, err := s.track(context.WithoutCancel(ctx), sess.ID)
	if err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.execute(run, sess, req.Apply); err != nil {
			s.log.Warn("background run failed", "session_id", sess.ID, "error", err)
		}
	}()
	return run, nil
}

// Wait blocks until every background run has finished.
func (s *RunService) Wait() {
	s.wg.Wait()
}

func (s *RunService) track(ctx context.Context, id string) (*Run, error) {
	ctx, cancel := context.WithCancel(ctx)
	run := &Run{ID: id, Status: types.StatusRunning, CreatedAt: time.Now(), ctx: ctx, cancel: cancel}
	if _, loaded := s.active.LoadOrStore(id, run); loaded {
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrRunActive, id)
	}
	return run, nil
}

func (s *RunService) execute(run *Run, sess *runtime.Session, apply bool) (*dto.RunResponse, error) {
	defer func() {
		run.cancel()
		s.active.Delete(run.ID)
	}()

	res, err := s.runner.Run(run.ctx, sess)
	if res == nil {
		return nil, err
	}
	resp := &dto.RunResponse{Result: res}
	if !apply || res.Status != types.StatusSuccess {
		return resp, nil
	}
	if s.patches == nil {
		return resp, errors.New("apply requested but no workspace is configured")
	}

	applied, err := s.patches.ApplyAll(run.ctx, res.FileEdits)
	resp.Applied = applied
	if err != nil {
		return resp, fmt.Errorf("apply edits: %w", err)
	}
	s.log.Info("edits applied", "session_id", res.SessionID, "files", len(applied))
	return resp, nil
}

// Cancel stops an active run.
func (s *RunService) Cancel(id string) error {
	val, ok := s.active.Load(id)
	if !ok {
		return ErrRunNotFound
	}
	val.(*Run).cancel()
	return nil
}

// Get returns the stored result of a finished run, or a running placeholder
// for an active one.
func (s *RunService) Get(ctx context.Context, id string) (*types.RunResult, error) {
	if _, ok := s.active.Load(id); ok {
		return &types.RunResult{SessionID: id, Status: types.StatusRunning}, nil
	}
	res, err := s.store.LoadResult(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	return res, err
}

// Messages rebuilds the transcript of a run from its event log.
func (s *RunService) Messages(ctx context.Context, id string) ([]types.Message, error) {
	msgs, err := runtime.Replay(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		return nil, ErrRunNotFound
	}
	return msgs, nil
}

// List returns the stored run IDs in creation order.
func (s *RunService) List(ctx context.Context) ([]string, error) {
	return s.store.ListSessions(ctx)
}

// Delete removes a finished run from the store.
func (s *RunService) Delete(ctx context.Context, id string) error {
	if _, ok := s.active.Load(id); ok {
		return fmt.Errorf("%w: %s", ErrRunActive, id)
	}
	err := s.store.DeleteSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrRunNotFound
	}
	return err
}

// Permissions lists tool calls waiting for approval.
func (s *RunService) Permissions() []tool.PermissionRequest {
	if s.permissions == nil {
		return []tool.PermissionRequest{}
	}
	return s.permissions.Pending()
}

// RespondPermission handles a permission response
func (s *RunService) RespondPermission(requestID string, approved, always bool) error {
	if s.permissions == nil {
		return errors.New("permission manager not available")
	}
	return s.permissions.Respond(requestID, approved, always)
}
