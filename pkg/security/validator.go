// Package security guards the file system and shell access of tools and of
// generated file edits.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrSuspiciousPath   = errors.New("suspicious path pattern detected")
	ErrPathNotAllowed   = errors.New("path not in allowed list")
	ErrBlockedCommand   = errors.New("blocked dangerous command")
	ErrCommandInjection = errors.New("potential command injection detected")
)

// PathValidator validates file paths for security
type PathValidator struct {
	workDir      string
	allowedPaths []string
}

// NewPathValidator creates a new path validator. Allowed paths are
// workspace-relative directories or doublestar globs; none means the whole
// workspace.
func NewPathValidator(workDir string, allowedPaths []string) *PathValidator {
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}
	return &PathValidator{
		workDir:      workDir,
		allowedPaths: allowedPaths,
	}
}

// Root is the absolute workspace directory.
func (v *PathValidator) Root() string {
	return v.workDir
}

// ValidatePath ensures a path is safe and within allowed boundaries
func (v *PathValidator) ValidatePath(path string) error {
	_, err := v.Resolve(path)
	return err
}

// Resolve validates path and returns it as an absolute path inside the
// workspace.
func (v *PathValidator) Resolve(path string) (string, error) {
	absPath := filepath.Clean(path)
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(v.workDir, absPath)
	}

	relPath, err := filepath.Rel(v.workDir, absPath)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	relPath = filepath.ToSlash(relPath)

	if relPath == ".." || strings.HasPrefix(relPath, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}

	if containsSuspiciousPattern("/" + relPath) {
		return "", fmt.Errorf("%w: %s", ErrSuspiciousPath, path)
	}

	if len(v.allowedPaths) > 0 && !v.allowed(relPath) {
		return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, path)
	}

	return absPath, nil
}

// Rel returns path relative to the workspace, using forward slashes.
func (v *PathValidator) Rel(path string) (string, error) {
	abs, err := v.Resolve(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(v.workDir, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (v *PathValidator) allowed(relPath string) bool {
	for _, allowed := range v.allowedPaths {
		allowed = strings.TrimSuffix(filepath.ToSlash(allowed), "/")
		if relPath == allowed || strings.HasPrefix(relPath, allowed+"/") {
			return true
		}
		if ok, _ := doublestar.Match(allowed, relPath); ok {
			return true
		}
	}
	return false
}

// containsSuspiciousPattern checks for dangerous path patterns
func containsSuspiciousPattern(path string) bool {
	suspiciousPatterns := []string{
		"/../",        // Path traversal
		"/.ssh/",      // SSH keys
		"/.aws/",      // AWS credentials
		"/.gcp/",      // GCP credentials
		"/.git/",      // Repository internals
		"id_rsa",      // SSH private key
		"id_dsa",      // SSH private key
		"id_ecdsa",    // SSH private key
		"id_ed25519",  // SSH private key
		"credentials", // Generic credentials
		"secrets",     // Secrets
	}

	lowerPath := strings.ToLower(path)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lowerPath, pattern) {
			return true
		}
	}

	base := filepath.Base(lowerPath)
	return base == ".env" || strings.HasPrefix(base, ".env.")
}

// CommandValidator validates shell commands
type CommandValidator struct {
	blockedCommands []string
	blockedPatterns []*regexp.Regexp
}

// NewCommandValidator creates a new command validator
func NewCommandValidator() *CommandValidator {
	return &CommandValidator{
		blockedCommands: []string{
			"rm -rf /",
			"dd if=/dev/zero",
			":(){ :|:& };:",
		},
		blockedPatterns: []*regexp.Regexp{
			regexp.MustCompile(`rm\s+.*-rf\s+/\s*$`), // rm -rf ending with /
			regexp.MustCompile(`chmod\s+.*777`),      // Overly permissive permissions
			regexp.MustCompile(`curl\s.*\|\s*(ba)?sh`),
			regexp.MustCompile(`wget\s.*\|\s*(ba)?sh`),
		},
	}
}

// ValidateCommand checks if a shell command is safe to execute
func (v *CommandValidator) ValidateCommand(cmd string) error {
	lowerCmd := strings.ToLower(strings.TrimSpace(cmd))

	for _, blocked := range v.blockedCommands {
		if strings.Contains(lowerCmd, blocked) {
			return fmt.Errorf("%w: %s", ErrBlockedCommand, blocked)
		}
	}
	for _, rx := range v.blockedPatterns {
		if rx.MatchString(lowerCmd) {
			return fmt.Errorf("%w: %s", ErrBlockedCommand, rx.String())
		}
	}

	if containsCommandInjection(cmd) {
		return ErrCommandInjection
	}

	return nil
}

// containsCommandInjection reports commands that combine three or more
// chaining, substitution or redirection operators.
func containsCommandInjection(cmd string) bool {
	injectionPatterns := []string{
		";",  // Command separator
		"&&", // Command chaining
		"||", // Command chaining
		"|",  // Pipe
		"`",  // Command substitution
		"$(", // Command substitution
		">",  // Redirection
		"<",  // Redirection
	}

	dangerousCount := 0
	for _, pattern := range injectionPatterns {
		if strings.Contains(cmd, pattern) {
			dangerousCount++
		}
	}
	return dangerousCount >= 3
}

// ResourceLimits defines resource constraints for tool execution
type ResourceLimits struct {
	MaxExecutionTime int64 // seconds
	MaxFileSize      int64 // bytes
}

// DefaultResourceLimits returns safe default limits
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxExecutionTime: 300,               // 5 minutes
		MaxFileSize:      10 * 1024 * 1024, // 10 MB
	}
}
