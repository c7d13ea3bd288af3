package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/obs"
)

func TestLogRecorder(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := WithTraceID(context.Background(), "trace-123")
	entry := New(directory.UserRef("user-42"), "request", "req-1", "respond", map[string]any{"response": "accepted"})
	if entry.ID == "" {
		t.Fatal("expected generated entry id")
	}

	if err := (LogRecorder{}).Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if line["type"] != "activity" {
		t.Fatalf("unexpected type: %v", line["type"])
	}
	if line["action"] != "respond" {
		t.Fatalf("unexpected action: %v", line["action"])
	}
	if line["performed_by"] != "user:user-42" {
		t.Fatalf("unexpected performer: %v", line["performed_by"])
	}
	if line["trace_id"] != "trace-123" {
		t.Fatalf("unexpected trace id: %v", line["trace_id"])
	}
	data, ok := line["data"].(map[string]any)
	if !ok || data["response"] != "accepted" {
		t.Fatalf("data missing or incorrect: %v", line["data"])
	}
}

func TestLogRecorderRejectsEmptyAction(t *testing.T) {
	entry := New(directory.UserRef("u"), "request", "r", "", nil)
	if err := (LogRecorder{}).Record(context.Background(), entry); err == nil {
		t.Fatal("expected error for empty action")
	}
}
