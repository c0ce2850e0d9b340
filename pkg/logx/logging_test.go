package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "relay"))

	log.Warn("delivery failed", Int("status", 400), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if m["level"] != "warn" {
		t.Fatalf("level = %v, want warn", m["level"])
	}
	if m["message"] != "delivery failed" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["comp"] != "relay" {
		t.Fatalf("comp = %v, want relay", m["comp"])
	}
	if m["err"] != "boom" {
		t.Fatalf("err = %v, want boom", m["err"])
	}
	caller, _ := m["caller"].(string)
	if !strings.HasPrefix(caller, "logging_test.go:") {
		t.Fatalf("caller = %q, want short caller in this file", caller)
	}
}

func TestJSONLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if log.Enabled(LevelInfo) {
		t.Fatal("info should not be enabled at warn level")
	}
	if !log.Enabled(LevelError) {
		t.Fatal("error should be enabled at warn level")
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	zero.Info("no panic")
	Nop().Error("no panic")
	if Nop().IsZero() {
		t.Fatal("Nop logger should not be zero")
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, lvl := range []string{"", "info", "DEBUG", "warning", "error", "trace"} {
		if !ValidLevel(lvl) {
			t.Fatalf("ValidLevel(%q) = false", lvl)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel(loud) = true")
	}
}
