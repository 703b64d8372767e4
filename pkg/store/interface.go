package store

import (
	"context"
	"errors"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

var ErrNotFound = errors.New("not found")

// Store defines the persistence layer contract for sessions. Events are
// grouped by their subject, which is the session ID.
type Store interface {
	// Lifecycle
	Open(ctx context.Context) error
	Close() error

	// Event Operations
	AppendEvent(ctx context.Context, event types.Event) error
	AppendEvents(ctx context.Context, events []types.Event) error
	GetEvent(ctx context.Context, sessionID, id string) (types.Event, error)
	IterEvents(ctx context.Context, sessionID string, fn func(types.Event) error) error

	// Result Operations
	SaveResult(ctx context.Context, result *types.RunResult) error
	LoadResult(ctx context.Context, sessionID string) (*types.RunResult, error)

	// Session Operations
	ListSessions(ctx context.Context) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}
