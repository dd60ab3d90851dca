package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warning", Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info("quiet")
	log.Warn("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") {
		t.Fatalf("unexpected output: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no colours for a buffer: %q", out)
	}
}

func TestFileHookWritesJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Dir: dir, Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.WithField("session", "abc").Info("surface connected")

	matches, err := filepath.Glob(filepath.Join(dir, FileName+".*"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one dated log file, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", data, err)
	}
	if entry["msg"] != "surface connected" || entry["session"] != "abc" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestDiscardDropsEverything(t *testing.T) {
	Discard().Error("nothing to see")
}
