package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// FSStore implements Store using the local file system.
// Directory structure:
// root/
//
//	└── {session_id}/
//	    ├── events.jsonl
//	    └── result.json
type FSStore struct {
	rootDir string
	mu      sync.RWMutex
}

func NewFSStore(rootDir string) *FSStore {
	return &FSStore{rootDir: rootDir}
}

func (s *FSStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.rootDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.rootDir, err)
	}
	return nil
}

func (s *FSStore) Close() error {
	return nil
}

func (s *FSStore) sessionDir(sessionID string) (string, error) {
	if sessionID == "" || sessionID != filepath.Base(sessionID) || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.rootDir, sessionID), nil
}

// --- Event Operations ---

func (s *FSStore) AppendEvent(ctx context.Context, event types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendEventLocked(event)
}

func (s *FSStore) AppendEvents(ctx context.Context, events []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if err := s.appendEventLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *FSStore) appendEventLocked(event types.Event) error {
	dir, err := s.sessionDir(event.EventSubject())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

var errStop = errors.New("stop")

func (s *FSStore) GetEvent(ctx context.Context, sessionID, id string) (types.Event, error) {
	var found types.Event
	err := s.IterEvents(ctx, sessionID, func(e types.Event) error {
		if e.EventID() == id {
			found = e
			return errStop
		}
		return nil
	})
	if errors.Is(err, errStop) {
		return found, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

func (s *FSStore) IterEvents(ctx context.Context, sessionID string, fn func(types.Event) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(dir, "events.jsonl"))
	if os.IsNotExist(err) {
		return nil // No events yet
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024) // 10MB max line

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		evt, err := decodeEvent(line)
		if err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// decodeEvent reads the type discriminator first, then the concrete event.
func decodeEvent(line []byte) (types.Event, error) {
	var base types.BaseEvent
	if err := json.Unmarshal(line, &base); err != nil {
		return nil, fmt.Errorf("corrupt event log line: %w", err)
	}

	var evt types.Event
	switch base.Type {
	case types.EventSessionStarted:
		evt = &types.SessionStartedEvent{}
	case types.EventTurnStarted:
		evt = &types.TurnStartedEvent{}
	case types.EventLLMResponse:
		evt = &types.LLMResponseEvent{}
	case types.EventToolResult:
		evt = &types.ToolResultEvent{}
	case types.EventRepair:
		evt = &types.RepairEvent{}
	case types.EventParticipant:
		evt = &types.ParticipantEvent{}
	case types.EventMessage:
		evt = &types.MessageEvent{}
	case types.EventSessionFinished:
		evt = &types.SessionFinishedEvent{}
	default:
		return &base, nil
	}
	if err := json.Unmarshal(line, evt); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", base.Type, err)
	}
	return evt, nil
}

// --- Result Operations ---

func (s *FSStore) SaveResult(ctx context.Context, result *types.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.sessionDir(result.SessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(dir, "result.json"), data)
}

func (s *FSStore) LoadResult(ctx context.Context, sessionID string) (*types.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "result.json"))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result types.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"

	// 1. Write to temp
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	// 2. Sync to disk requires opening the file and calling Sync
	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	f.Close()

	// 3. Rename
	return os.Rename(tmpPath, path)
}

// --- Session Operations ---

// ListSessions returns session IDs in ascending order, which for ULID based
// IDs is creation order.
func (s *FSStore) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.rootDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FSStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrNotFound
	}
	return os.RemoveAll(dir)
}
