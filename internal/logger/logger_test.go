package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Strob0t/CodeCouncil/internal/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return m
}

func TestNewReturnsLogger(t *testing.T) {
	l, closer := New(config.Logging{Level: "debug", Service: "test-svc"})
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewWithWriterServiceAttr(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "council"}, &buf)
	l.Info("hello")
	closer.Close()

	m := decodeLine(t, &buf)
	if m["service"] != "council" {
		t.Errorf("expected service=council, got %v", m["service"])
	}
	if m["msg"] != "hello" {
		t.Errorf("expected msg=hello, got %v", m["msg"])
	}
}

func TestContextIDsInjected(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "council"}, &buf)
	defer closer.Close()

	ctx := WithSessionID(WithRequestID(context.Background(), "req-9"), "sess-1")
	l.InfoContext(ctx, "feature passed")

	m := decodeLine(t, &buf)
	if m["request_id"] != "req-9" {
		t.Errorf("expected request_id req-9, got %v", m["request_id"])
	}
	if m["session_id"] != "sess-1" {
		t.Errorf("expected session_id sess-1, got %v", m["session_id"])
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "warn", Service: "council"}, &buf)
	defer closer.Close()

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	l.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn should pass at warn level")
	}
}

func TestNewAsyncFlushesOnClose(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "council", Async: true}, &buf)
	l.Info("queued")
	closer.Close()

	m := decodeLine(t, &buf)
	if m["msg"] != "queued" {
		t.Errorf("expected queued record after close, got %v", m["msg"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"WARN", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"verbose", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestContextAccessorsEmpty(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" || SessionID(ctx) != "" {
		t.Error("expected empty ids on a bare context")
	}
}
