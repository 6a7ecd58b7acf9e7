package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("invalid json log line %q: %v", buf.String(), err)
	}
	return rec
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentHTTP, Output: &buf})

	logger.Info("hello", FieldOwnerID, int64(7))
	rec := decodeLine(t, &buf)
	if rec[FieldComponent] != ComponentHTTP {
		t.Errorf("component = %v, want %s", rec[FieldComponent], ComponentHTTP)
	}
	if rec[FieldOwnerID] != float64(7) {
		t.Errorf("owner_id = %v, want 7", rec[FieldOwnerID])
	}

	buf.Reset()
	logger.WithComponent(ComponentJanitor).Warn("sweep")
	if rec := decodeLine(t, &buf); rec[FieldComponent] != ComponentJanitor {
		t.Errorf("component = %v, want %s", rec[FieldComponent], ComponentJanitor)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: "text", Component: ComponentApp, Output: &buf})

	logger.Info("dropped")
	logger.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}
	logger.Error("kept")
	if !strings.Contains(buf.String(), "msg=kept") {
		t.Fatalf("error record missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := Discard().WithComponent(ComponentAuth)
	ctx := WithContext(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Fatal("FromContext did not return the stored logger")
	}
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("fallback component = %q, want unknown", got.Component())
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: "json", Component: ComponentService, Output: &buf}))

	sl.LogError(context.Background(), "Failed to update transaction", errors.New("disk full"),
		ErrorTypeDatabase, OpUpdate, NewFields().WithOwner(3).WithTransaction(9, "", ""))
	rec := decodeLine(t, &buf)
	checks := map[string]any{
		FieldError:         "disk full",
		FieldErrorType:     ErrorTypeDatabase,
		FieldOperation:     OpUpdate,
		FieldOwnerID:       float64(3),
		FieldTransactionID: float64(9),
		FieldComponent:     ComponentService,
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("%s = %v, want %v", k, rec[k], want)
		}
	}
	if _, ok := rec[FieldTxType]; ok {
		t.Error("empty transaction type should be omitted")
	}

	buf.Reset()
	sl.LogTransactionWritten(context.Background(), OpCreate, 3, 10, "expense", "5000", "abc.png")
	rec = decodeLine(t, &buf)
	if rec["msg"] != "Transaction create succeeded" || rec[FieldBlobKey] != "abc.png" || rec[FieldAmount] != "5000" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestFieldsToSliceSkipsComponent(t *testing.T) {
	fields := NewFields().WithComponent(ComponentHTTP).WithOperation(OpList).WithError(nil)
	slice := fields.ToSlice()
	if len(slice) != 2 || slice[0] != FieldOperation || slice[1] != OpList {
		t.Errorf("ToSlice() = %v", slice)
	}
}
