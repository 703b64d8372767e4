package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"http://host:1/":  "http://host:1",
		"https://example": "https://example",
		":8080":           "http://localhost:8080",
		"localhost:9000":  "http://localhost:9000",
	}
	for in, want := range cases {
		got, err := normalizeBaseURL(in)
		if err != nil {
			t.Fatalf("normalizeBaseURL(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := normalizeBaseURL("  "); err == nil {
		t.Error("expected error for empty URL")
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "secret", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRun(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/runs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Prompt != "hi" || !req.Apply {
			t.Errorf("unexpected body %+v", req)
		}
		_, _ = w.Write([]byte(`{"result":{"session_id":"ses_1","status":"success","text":"hello"},"applied":[{"file_path":"a.txt","created":true}]}`))
	})

	resp, err := c.Run(context.Background(), RunRequest{Prompt: "hi", Apply: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result.Text != "hello" || resp.Result.SessionID != "ses_1" {
		t.Errorf("unexpected result %+v", resp.Result)
	}
	if len(resp.Applied) != 1 || !resp.Applied[0].Created {
		t.Errorf("unexpected applied %+v", resp.Applied)
	}
}

func TestRunError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid request: no messages"}`))
	})
	_, err := c.Run(context.Background(), RunRequest{})
	if err == nil || !strings.Contains(err.Error(), "no messages") {
		t.Fatalf("expected server message in error, got %v", err)
	}
}

func TestStart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req RunRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Async {
			t.Error("expected async request")
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"ses_bg","status":"running"}`))
	})
	id, err := c.Start(context.Background(), RunRequest{Prompt: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "ses_bg" {
		t.Errorf("id = %q", id)
	}
}

func TestRunLifecycle(t *testing.T) {
	var deleted, cancelled string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/runs":
			_, _ = w.Write([]byte(`{"runs":["a","b"]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/runs/a":
			_, _ = w.Write([]byte(`{"session_id":"a","status":"running","text":""}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/runs/a/messages":
			_, _ = w.Write([]byte(`{"id":"a","messages":[{"role":"user","content":"q"},{"role":"assistant","tool_calls":[{"id":"c1","name":"glob","arguments":"{}"}]}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/runs/a/cancel":
			cancelled = "a"
			_, _ = w.Write([]byte(`{"id":"a","status":"cancelling"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/runs/b":
			deleted = "b"
			_, _ = w.Write([]byte(`{"deleted":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"run not found"}`))
		}
	})
	ctx := context.Background()

	ids, err := c.ListRuns(ctx)
	if err != nil || len(ids) != 2 {
		t.Fatalf("ListRuns = %v, %v", ids, err)
	}
	res, err := c.GetRun(ctx, "a")
	if err != nil || res.Status != "running" {
		t.Fatalf("GetRun = %+v, %v", res, err)
	}
	msgs, err := c.Messages(ctx, "a")
	if err != nil || len(msgs) != 2 || msgs[1].ToolCalls[0].Name != "glob" {
		t.Fatalf("Messages = %+v, %v", msgs, err)
	}
	if err := c.CancelRun(ctx, "a"); err != nil || cancelled != "a" {
		t.Fatalf("CancelRun: %v", err)
	}
	if err := c.DeleteRun(ctx, "b"); err != nil || deleted != "b" {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := c.GetRun(ctx, "zzz"); err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPermissions(t *testing.T) {
	var got map[string]bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"requests":[{"request_id":"perm_1","tool_name":"run_shell","permission":"shell","arguments":"{\"command\":\"ls\"}"}]}`))
			return
		}
		if r.URL.Path != "/api/v1/permissions/perm_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	ctx := context.Background()

	reqs, err := c.Permissions(ctx)
	if err != nil || len(reqs) != 1 || reqs[0].ToolName != "run_shell" {
		t.Fatalf("Permissions = %+v, %v", reqs, err)
	}
	if err := c.RespondPermission(ctx, "perm_1", true, true); err != nil {
		t.Fatal(err)
	}
	if !got["approved"] || !got["always"] {
		t.Errorf("unexpected body %v", got)
	}
}
