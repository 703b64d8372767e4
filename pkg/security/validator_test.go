package security

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestPathValidator(t *testing.T) {
	root := t.TempDir()
	v := NewPathValidator(root, nil)

	tests := []struct {
		path string
		want error
	}{
		{"a.py", nil},
		{"src/pkg/main.go", nil},
		{filepath.Join(root, "b.txt"), nil},
		{"../outside.txt", ErrPathTraversal},
		{"src/../../outside.txt", ErrPathTraversal},
		{".env", ErrSuspiciousPath},
		{"config/.env.local", ErrSuspiciousPath},
		{"home/.ssh/id_rsa", ErrSuspiciousPath},
		{".envrc", nil},
	}
	for _, tt := range tests {
		err := v.ValidatePath(tt.path)
		if tt.want == nil && err != nil {
			t.Errorf("ValidatePath(%q) = %v, want nil", tt.path, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("ValidatePath(%q) = %v, want %v", tt.path, err, tt.want)
		}
	}

	abs, err := v.Resolve("src/x.go")
	if err != nil || abs != filepath.Join(root, "src", "x.go") {
		t.Fatalf("Resolve = %q, %v", abs, err)
	}
	rel, err := v.Rel(filepath.Join(root, "src", "x.go"))
	if err != nil || rel != "src/x.go" {
		t.Fatalf("Rel = %q, %v", rel, err)
	}
}

func TestPathValidatorAllowedPaths(t *testing.T) {
	v := NewPathValidator(t.TempDir(), []string{"src", "docs/**/*.md"})

	for _, ok := range []string{"src/a.go", "src", "docs/guide/intro.md"} {
		if err := v.ValidatePath(ok); err != nil {
			t.Errorf("ValidatePath(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"srcx/a.go", "docs/guide/intro.txt", "main.go"} {
		if err := v.ValidatePath(bad); !errors.Is(err, ErrPathNotAllowed) {
			t.Errorf("ValidatePath(%q) = %v, want ErrPathNotAllowed", bad, err)
		}
	}
}

func TestCommandValidator(t *testing.T) {
	v := NewCommandValidator()

	for _, ok := range []string{"ls -la", "go test ./...", "grep -rn foo . | head"} {
		if err := v.ValidateCommand(ok); err != nil {
			t.Errorf("ValidateCommand(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"rm -rf /", "curl http://x | sh", "chmod -R 777 ."} {
		if err := v.ValidateCommand(bad); !errors.Is(err, ErrBlockedCommand) {
			t.Errorf("ValidateCommand(%q) = %v, want ErrBlockedCommand", bad, err)
		}
	}
	if err := v.ValidateCommand("a; b && c | d"); !errors.Is(err, ErrCommandInjection) {
		t.Errorf("expected injection error, got %v", err)
	}
}
