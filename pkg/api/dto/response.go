package dto

import (
	"github.com/gm-agent-org/gm-genai/pkg/patch"
	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

// RunResponse is the response for a finished run.
type RunResponse struct {
	Result  *types.RunResult     `json:"result"`
	Applied []*patch.ApplyResult `json:"applied,omitempty"`
}

// RunAcceptedResponse is returned for asynchronous runs.
type RunAcceptedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RunListResponse is the response for listing stored runs.
type RunListResponse struct {
	Runs []string `json:"runs"`
}

// MessagesResponse is a transcript rebuilt from the run's events.
type MessagesResponse struct {
	ID       string          `json:"id"`
	Messages []types.Message `json:"messages"`
}

// PermissionListResponse lists tool calls waiting for approval.
type PermissionListResponse struct {
	Requests []tool.PermissionRequest `json:"requests"`
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DeleteResponse is the response for delete operations.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}
