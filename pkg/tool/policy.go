package tool

import (
	"context"
	"fmt"
	"slices"

	"github.com/gm-agent-org/gm-genai/pkg/config"
)

// PolicyAction defines the action to take for a tool execution
type PolicyAction string

const (
	PolicyAllow   PolicyAction = "allow"
	PolicyDeny    PolicyAction = "deny"
	PolicyConfirm PolicyAction = "confirm" // needs a PermissionCallback to approve
)

// Tool categories checked by Policy, read from Tool.Metadata["category"].
const (
	CategoryFilesystem = "filesystem"
	CategoryInternet   = "internet"
	CategoryShell      = "shell"
)

type Policy struct {
	config   config.SecurityConfig
	registry *Registry
}

func NewPolicy(cfg config.SecurityConfig, registry *Registry) *Policy {
	return &Policy{
		config:   cfg,
		registry: registry,
	}
}

func (p *Policy) Check(ctx context.Context, toolName string, args string) (PolicyAction, error) {
	// AllowedTools, when set, is exhaustive.
	if len(p.config.AllowedTools) > 0 && !slices.Contains(p.config.AllowedTools, toolName) {
		return PolicyDeny, fmt.Errorf("tool %s is not in allowed_tools whitelist", toolName)
	}

	if p.registry != nil {
		if t, ok := p.registry.Get(toolName); ok {
			category := t.Metadata["category"]
			if category == CategoryFilesystem && !p.config.AllowFileSystem {
				return PolicyDeny, fmt.Errorf("filesystem operations (category: %s) are disabled by security policy", category)
			}
			if category == CategoryInternet && !p.config.AllowInternet {
				return PolicyDeny, fmt.Errorf("internet operations (category: %s) are disabled by security policy", category)
			}
			if category == CategoryShell && !p.config.AllowShell {
				return PolicyDeny, fmt.Errorf("shell operations (category: %s) are disabled by security policy", category)
			}
		}
	}

	if p.config.AutoApprove {
		return PolicyAllow, nil
	}
	return PolicyConfirm, nil
}
