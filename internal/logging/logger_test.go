package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatd.log")

	logger, err := New(path, "chatd", Options{Quiet: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("listening", zap.String("addr", ":8080"))
	logger.Debug("not written")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %s", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["component"] != "chatd" || entry["addr"] != ":8080" || entry["msg"] != "listening" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("missing ts field")
	}
}

func TestNewHonoursLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chattui.log")

	logger, err := New(path, "chattui", Options{Level: zapcore.DebugLevel, Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("push event ignored")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "push event ignored") {
		t.Errorf("debug entry missing: %s", data)
	}
}
