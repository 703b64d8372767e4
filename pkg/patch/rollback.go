package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rollback restores a file from backup using patch ID. A file the patch
// created is removed.
func (e *engine) Rollback(ctx context.Context, patchID string) error {
	matches, err := filepath.Glob(filepath.Join(e.backupDir(), patchID+"_*.bak"))
	if err != nil {
		return fmt.Errorf("failed to search for backup: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup found for patch ID: %s", patchID)
	}

	backupPath := matches[0]
	info, err := readMeta(backupPath)
	if err != nil {
		return err
	}

	absPath, err := e.validator.Resolve(info.FilePath)
	if err != nil {
		return fmt.Errorf("invalid file path in backup: %w", err)
	}

	if info.Created {
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove created file: %w", err)
		}
		e.log.Info("rolled back created file", "file", info.FilePath, "patch_id", patchID)
		return nil
	}

	content, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}
	if err := writeFile(absPath, string(content)); err != nil {
		return fmt.Errorf("failed to restore file: %w", err)
	}
	e.log.Info("rolled back file", "file", info.FilePath, "patch_id", patchID)
	return nil
}

func readMeta(backupPath string) (BackupInfo, error) {
	data, err := os.ReadFile(backupPath + ".meta")
	if err != nil {
		return BackupInfo{}, fmt.Errorf("failed to read backup metadata: %w", err)
	}
	var info BackupInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return BackupInfo{}, fmt.Errorf("failed to parse backup metadata: %w", err)
	}
	if info.FilePath == "" {
		return BackupInfo{}, fmt.Errorf("file path not found in metadata")
	}
	info.BackupPath = backupPath
	return info, nil
}

// ListBackups returns all available backups, newest first
func (e *engine) ListBackups() ([]BackupInfo, error) {
	backupDir := e.backupDir()
	if _, err := os.Stat(backupDir); os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}

	matches, err := filepath.Glob(filepath.Join(backupDir, "*.bak"))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(matches))
	for _, backupPath := range matches {
		info, err := readMeta(backupPath)
		if err != nil {
			// Skip if metadata is missing
			continue
		}

		// Read first few lines as preview
		if content, err := os.ReadFile(backupPath); err == nil {
			lines := strings.Split(string(content), "\n")
			info.DiffPreview = strings.Join(lines[:min(5, len(lines))], "\n")
		}
		backups = append(backups, info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].PatchID > backups[j].PatchID
	})
	return backups, nil
}
