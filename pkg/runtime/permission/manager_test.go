package permission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gm-agent-org/gm-genai/pkg/tool"
)

func TestCallbackApproved(t *testing.T) {
	m := NewManager(nil)
	cb := m.Callback(time.Second)

	done := make(chan bool)
	go func() {
		ok, err := cb(context.Background(), tool.PermissionRequest{RequestID: "perm_1", ToolName: "run_shell"})
		if err != nil {
			t.Errorf("callback error: %v", err)
		}
		done <- ok
	}()

	deadline := time.Now().Add(time.Second)
	for len(m.Pending()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never became pending")
		}
		time.Sleep(time.Millisecond)
	}
	if err := m.Respond("perm_1", true, true); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !<-done {
		t.Fatal("expected approval")
	}
	if len(m.Pending()) != 0 {
		t.Fatal("answered request should be removed")
	}

	// always-approved tools skip the wait
	ok, err := cb(context.Background(), tool.PermissionRequest{RequestID: "perm_2", ToolName: "run_shell"})
	if err != nil || !ok {
		t.Fatalf("expected remembered approval, got %v, %v", ok, err)
	}
}

func TestCallbackTimeout(t *testing.T) {
	m := NewManager(nil)
	ok, err := m.Callback(10*time.Millisecond)(context.Background(), tool.PermissionRequest{RequestID: "perm_1", ToolName: "x"})
	if ok || !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v, %v", ok, err)
	}
}

func TestRespondUnknown(t *testing.T) {
	if err := NewManager(nil).Respond("missing", true, false); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}
