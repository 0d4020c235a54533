package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestLogger_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("order-api", &buf)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	l.Error(ctx, "status_change", "transition failed", errors.New("boom"), slog.String("order_id", "o-1"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	want := map[string]string{
		"level":      "ERROR",
		"msg":        "transition failed",
		"service":    "order-api",
		"action":     "status_change",
		"request_id": "req-1",
		"error":      "boom",
		"order_id":   "o-1",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

func TestLogger_NoRequestID(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("svc", &buf).Info(context.Background(), "boot", "started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if _, ok := entry["request_id"]; ok {
		t.Errorf("request_id should be absent, got %v", entry["request_id"])
	}
}
