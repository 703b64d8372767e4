// Package patch persists computed file edits to a workspace with backups,
// so any applied edit can be rolled back.
package patch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gm-agent-org/gm-genai/pkg/security"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// Engine handles file patching operations
type Engine interface {
	// GenerateDiff creates a unified diff between old and new content
	GenerateDiff(ctx context.Context, filePath, oldContent, newContent string) (string, error)

	// Apply writes the edit's after content to disk.
	// Returns the patch ID for potential rollback
	Apply(ctx context.Context, edit *types.FileEdit) (*ApplyResult, error)

	// ApplyAll applies every persistable edit in filename order. When one
	// edit fails, the files already written by the call are restored.
	ApplyAll(ctx context.Context, edits map[string]*types.FileEdit) ([]*ApplyResult, error)

	// DryRun previews the changes without modifying files
	DryRun(ctx context.Context, edit *types.FileEdit) (*ApplyResult, error)

	// Rollback restores a file from backup using patch ID
	Rollback(ctx context.Context, patchID string) error

	// ListBackups returns all available backups
	ListBackups() ([]BackupInfo, error)
}

// ApplyResult contains the result of a patch operation
type ApplyResult struct {
	PatchID      string   `json:"patch_id,omitempty"`
	FilePath     string   `json:"file_path"`
	Success      bool     `json:"success"`
	Skipped      bool     `json:"skipped,omitempty"`
	Created      bool     `json:"created,omitempty"`
	Diff         string   `json:"diff"`
	LinesAdded   int      `json:"lines_added"`
	LinesRemoved int      `json:"lines_removed"`
	BackupPath   string   `json:"backup_path,omitempty"`
	Error        string   `json:"error,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	RolledBack   bool     `json:"rolled_back,omitempty"` // undone after a later edit in the batch failed
}

// BackupInfo represents a backup entry
type BackupInfo struct {
	PatchID     string `json:"patch_id" yaml:"patch_id"`
	FilePath    string `json:"file_path" yaml:"file_path"`
	BackupPath  string `json:"backup_path" yaml:"-"`
	Timestamp   string `json:"timestamp" yaml:"timestamp"`
	Created     bool   `json:"created" yaml:"created"` // file did not exist before the patch
	DiffPreview string `json:"diff_preview" yaml:"-"`  // First few lines
}

// Config for patch engine
type Config struct {
	// WorkDir is the root directory for all file operations
	WorkDir string
	// BackupDir is where backups are stored, relative to WorkDir unless absolute
	BackupDir string
	// MaxContextLines for diff generation (default: 3)
	MaxContextLines int
	// AllowedPaths restricts patch operations to specific paths
	AllowedPaths []string
	Logger       *slog.Logger
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		WorkDir:         ".",
		BackupDir:       ".gm-genai/backups",
		MaxContextLines: 3,
		AllowedPaths:    []string{},
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work directory cannot be empty")
	}
	if c.BackupDir == "" {
		return fmt.Errorf("backup directory cannot be empty")
	}
	if c.MaxContextLines < 0 {
		return fmt.Errorf("max context lines cannot be negative")
	}
	return nil
}

// NewEngine creates a new patch engine instance
func NewEngine(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &engine{
		cfg:       cfg,
		validator: security.NewPathValidator(cfg.WorkDir, cfg.AllowedPaths),
		log:       cfg.Logger,
	}, nil
}

// engine is the default implementation
type engine struct {
	cfg       Config
	validator *security.PathValidator
	log       *slog.Logger
}
