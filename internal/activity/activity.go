package activity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"skillforge.org/internal/directory"
	"skillforge.org/internal/obs"
)

type ctxKey string

const traceIDKey ctxKey = "activity_trace_id"

// WithTraceID attaches a trace identifier to the context so entries emitted
// during the same operation can be correlated.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

func traceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry records who did what to what. Entries are append-only.
type Entry struct {
	ID          string
	OccurredAt  time.Time
	PerformedBy directory.Ref
	TargetKind  string
	TargetID    string
	Action      string
	Data        map[string]any
	TraceID     string
}

// New builds an entry with a fresh id and timestamp.
func New(performedBy directory.Ref, targetKind, targetID, action string, data map[string]any) *Entry {
	return &Entry{
		ID:          uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		PerformedBy: performedBy,
		TargetKind:  targetKind,
		TargetID:    targetID,
		Action:      action,
		Data:        data,
	}
}

// Recorder receives entries after the owning transaction has committed.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// LogRecorder emits entries as JSON lines on the shared logger.
type LogRecorder struct{}

var _ Recorder = LogRecorder{}

func (LogRecorder) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("activity entry is required")
	}
	if entry.Action == "" {
		return errors.New("activity action is required")
	}
	if entry.TraceID == "" {
		entry.TraceID = traceIDFromContext(ctx)
	}
	line := map[string]any{
		"ts":           entry.OccurredAt.UTC().Format(time.RFC3339Nano),
		"type":         "activity",
		"id":           entry.ID,
		"performed_by": entry.PerformedBy.String(),
		"target_kind":  entry.TargetKind,
		"target_id":    entry.TargetID,
		"action":       entry.Action,
	}
	if entry.TraceID != "" {
		line["trace_id"] = entry.TraceID
	}
	if len(entry.Data) > 0 {
		line["data"] = entry.Data
	} else {
		line["data"] = map[string]any{}
	}
	obs.LogOperation(line)
	return nil
}
