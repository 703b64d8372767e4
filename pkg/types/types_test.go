package types

import (
	"regexp"
	"testing"
)

func TestGenerateID(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		fn     func() string
	}{
		{"event", "evt_", GenerateEventID},
		{"session", "ses_", GenerateSessionID},
		{"call", "call_", GenerateCallID},
		{"patch", "pch_", GeneratePatchID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.fn()
			if ok, _ := regexp.MatchString("^"+regexp.QuoteMeta(tt.prefix)+"[0-9A-HJKMNP-TV-Z]{26}$", id); !ok {
				t.Fatalf("generated id %s does not have expected prefix %s", id, tt.prefix)
			}
		})
	}
}

func TestBaseEvent(t *testing.T) {
	evt := NewBaseEvent("test", "actor", "subject")
	if evt.ID == "" {
		t.Fatalf("expected id to be set")
	}
	if evt.EventType() != "test" || evt.EventActor() != "actor" || evt.EventSubject() != "subject" {
		t.Fatalf("unexpected event fields: %+v", evt)
	}
	if evt.EventTimestamp().IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestMessageText(t *testing.T) {
	m := Message{Role: RoleUser, Content: "ignored", Parts: []ContentPart{
		{Type: PartText, Text: "hello "},
		{Type: PartImage, URL: "data:image/png;base64,AAAA"},
		{Type: PartText, Text: "world"},
	}}
	if got := m.Text(); got != "hello world" {
		t.Fatalf("unexpected text: %q", got)
	}
	if got := (Message{Content: "plain"}).Text(); got != "plain" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestMessageClone(t *testing.T) {
	orig := Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Name: "a"}}}
	clone := orig.Clone()
	clone.ToolCalls[0].Name = "b"
	if orig.ToolCalls[0].Name != "a" {
		t.Fatalf("clone shares tool call storage")
	}
}

func TestAppendUserMessage(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "a"}}
	msgs = AppendUserMessage(msgs, "b")
	if len(msgs) != 1 || msgs[0].Content != "a\nb" {
		t.Fatalf("expected merge into trailing user message, got %+v", msgs)
	}
	msgs = append(msgs, Message{Role: RoleAssistant, Content: "c"})
	msgs = AppendUserMessage(msgs, "d")
	if len(msgs) != 3 || msgs[2].Role != RoleUser {
		t.Fatalf("expected new user message, got %+v", msgs)
	}
	if got := AppendUserMessage(msgs, ""); len(got) != 3 {
		t.Fatalf("empty content must not append")
	}
}

func TestFileEditPersistable(t *testing.T) {
	before, after := "a", "b"
	same := "a"
	tests := []struct {
		name string
		edit FileEdit
		want bool
	}{
		{"unchanged", FileEdit{Before: &before, After: &same}, false},
		{"no after", FileEdit{Before: &before}, false},
		{"changed", FileEdit{Before: &before, After: &after}, true},
		{"created", FileEdit{After: &after}, true},
		{"schema error", FileEdit{Before: &before, After: &after, Validation: &Validation{SchemaError: "bad"}}, false},
		{"apply error only", FileEdit{Before: &before, After: &after, Validation: &Validation{ApplyError: "x"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.edit.Persistable(); got != tt.want {
				t.Fatalf("Persistable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationValid(t *testing.T) {
	var v *Validation
	if !v.Valid() {
		t.Fatalf("nil validation should be valid")
	}
	if (&Validation{SchemaError: "x"}).Valid() {
		t.Fatalf("schema error should be invalid")
	}
}
