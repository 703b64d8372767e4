package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// ErrConflict is returned when the file on disk no longer matches the
// content the edit was computed from.
var ErrConflict = errors.New("file changed since edit was computed")

// Apply writes the edit to disk with backup
func (e *engine) Apply(ctx context.Context, edit *types.FileEdit) (*ApplyResult, error) {
	return e.apply(ctx, edit, false, nil)
}

// DryRun previews the changes without modifying files
func (e *engine) DryRun(ctx context.Context, edit *types.FileEdit) (*ApplyResult, error) {
	return e.apply(ctx, edit, true, nil)
}

// ApplyAll applies edits in filename order. It stops at the first failure,
// restores the files the batch already wrote and returns the results so far.
func (e *engine) ApplyAll(ctx context.Context, edits map[string]*types.FileEdit) ([]*ApplyResult, error) {
	names := make([]string, 0, len(edits))
	for name := range edits {
		names = append(names, name)
	}
	sort.Strings(names)

	batch := NewFileChangeTracker()
	results := make([]*ApplyResult, 0, len(names))
	for _, name := range names {
		err := ctx.Err()
		if err == nil {
			var res *ApplyResult
			res, err = e.apply(ctx, edits[name], false, batch)
			if res != nil {
				results = append(results, res)
			}
			if err != nil {
				err = fmt.Errorf("apply %s: %w", name, err)
			}
		}
		if err != nil {
			e.undo(context.WithoutCancel(ctx), batch.Flush(), results)
			return results, err
		}
	}
	batch.Flush()
	return results, nil
}

// undo rolls back changes newest first and marks the matching results.
func (e *engine) undo(ctx context.Context, changes []FileChange, results []*ApplyResult) {
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if err := e.Rollback(ctx, c.PatchID); err != nil {
			e.log.Error("batch rollback failed", "file", c.FilePath, "patch_id", c.PatchID, "error", err)
			continue
		}
		for _, r := range results {
			if r.PatchID == c.PatchID {
				r.RolledBack = true
			}
		}
	}
}

func (e *engine) apply(ctx context.Context, edit *types.FileEdit, dryRun bool, batch FileChangeTracker) (*ApplyResult, error) {
	absPath, err := e.validator.Resolve(edit.Filename)
	if err != nil {
		return nil, fmt.Errorf("invalid file path: %w", err)
	}

	result := &ApplyResult{FilePath: edit.Filename}
	if !edit.Persistable() {
		result.Skipped = true
		if edit.Validation != nil && edit.Validation.SchemaError != "" {
			result.Warnings = append(result.Warnings, "schema error: "+edit.Validation.SchemaError)
		}
		return result, nil
	}

	currentContent, err := readFile(absPath)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !sameContent(edit.Before, currentContent, exists) {
		return nil, fmt.Errorf("%w: %s", ErrConflict, edit.Filename)
	}

	diff, err := e.GenerateDiff(ctx, edit.Filename, currentContent, *edit.After)
	if err != nil && !errors.Is(err, ErrNoChanges) {
		return nil, err
	}
	added, removed := countChanges(diff)
	result.Diff = diff
	result.LinesAdded = added
	result.LinesRemoved = removed
	result.Created = !exists
	if edit.Validation != nil && edit.Validation.ApplyError != "" {
		result.Warnings = append(result.Warnings, "partially applied: "+edit.Validation.ApplyError)
	}

	if dryRun {
		result.Success = true
		return result, nil
	}

	result.PatchID = types.GeneratePatchID()
	result.BackupPath, err = e.createBackup(result.PatchID, edit.Filename, currentContent, !exists)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup: %w", err)
	}

	if err := writeFile(absPath, *edit.After); err != nil {
		result.Error = fmt.Sprintf("failed to write file: %v", err)
		return result, fmt.Errorf("failed to write file: %w", err)
	}
	result.Success = true

	if batch != nil {
		operation := "modify"
		if !exists {
			operation = "create"
		}
		batch.Record(FileChange{
			PatchID:    result.PatchID,
			FilePath:   edit.Filename,
			BackupPath: result.BackupPath,
			Operation:  operation,
		})
	}
	e.log.Info("file written", "file", edit.Filename, "patch_id", result.PatchID, "added", added, "removed", removed)
	return result, nil
}

func sameContent(before *string, current string, exists bool) bool {
	if before == nil {
		return !exists
	}
	return exists && *before == current
}

// readFile reads a file as text
func readFile(absPath string) (string, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// writeFile safely writes a file with atomic operation
func writeFile(absPath, content string) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmpPath := absPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, absPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func (e *engine) backupDir() string {
	if filepath.IsAbs(e.cfg.BackupDir) {
		return e.cfg.BackupDir
	}
	return filepath.Join(e.validator.Root(), e.cfg.BackupDir)
}

// createBackup stores the pre-patch content next to a YAML metadata file.
func (e *engine) createBackup(patchID, filePath, content string, created bool) (string, error) {
	backupDir := e.backupDir()
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	backupName := fmt.Sprintf("%s_%s_%s.bak", patchID, timestamp, filepath.Base(filePath))
	backupPath := filepath.Join(backupDir, backupName)

	if err := os.WriteFile(backupPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	meta, err := yaml.Marshal(BackupInfo{
		PatchID:   patchID,
		FilePath:  filePath,
		Timestamp: timestamp,
		Created:   created,
	})
	if err != nil {
		return "", fmt.Errorf("marshal backup metadata: %w", err)
	}
	if err := os.WriteFile(backupPath+".meta", meta, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup metadata: %w", err)
	}

	return backupPath, nil
}
