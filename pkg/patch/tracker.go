package patch

import (
	"sync"
)

// FileChange records one file written by the engine.
type FileChange struct {
	PatchID    string `json:"patch_id"`
	FilePath   string `json:"file_path"`
	BackupPath string `json:"backup_path"`
	Operation  string `json:"operation"` // create, modify
}

// FileChangeTracker collects the files written by one batch so the batch
// can be undone as a whole.
type FileChangeTracker interface {
	// Record adds a file change to the current tracking window
	Record(change FileChange)

	// Flush returns all pending changes and clears the tracker
	Flush() []FileChange
}

// NewFileChangeTracker creates a new tracker instance
func NewFileChangeTracker() FileChangeTracker {
	return &fileChangeTracker{
		changes: make([]FileChange, 0),
	}
}

type fileChangeTracker struct {
	mu      sync.Mutex
	changes []FileChange
}

func (t *fileChangeTracker) Record(change FileChange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changes = append(t.changes, change)
}

func (t *fileChangeTracker) Flush() []FileChange {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := t.changes
	t.changes = make([]FileChange, 0)
	return result
}
