package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestWarnWritesLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	Warn("generate.image_failed", map[string]any{
		"session_id": "s-1",
		"error":      errors.New("boom"),
	})

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected level warn, got %v", payload["level"])
	}
	if payload["msg"] != "generate.image_failed" {
		t.Fatalf("unexpected msg %v", payload["msg"])
	}
	if payload["error"] != "boom" {
		t.Fatalf("expected error string field, got %v", payload["error"])
	}
	if payload["session_id"] != "s-1" {
		t.Fatalf("expected session_id field, got %v", payload["session_id"])
	}
}

func TestReservedKeysWin(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	Info("real", map[string]any{"msg": "spoofed", "level": "debug"})

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if payload["msg"] != "real" || payload["level"] != "info" {
		t.Fatalf("reserved keys overwritten: %v", payload)
	}
}
