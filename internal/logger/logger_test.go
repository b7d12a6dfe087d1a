package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_DefaultConfig(t *testing.T) {
	logger, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if logger.config.Level != "info" {
		t.Errorf("expected default level = info, got %s", logger.config.Level)
	}

	if logger.config.Format != "console" {
		t.Errorf("expected default format = console, got %s", logger.config.Format)
	}
}

func TestNew_InvalidLogLevel(t *testing.T) {
	_, err := New(&Config{Level: "verbose", Format: "console"})
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestNew_InvalidLogFile(t *testing.T) {
	_, err := New(&Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "/nonexistent-dir/sub/pastemark.log",
	})
	if err == nil {
		t.Fatal("expected error for unwritable log file")
	}
}

func TestNew_FileOutputJSON(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pastemark.log")

	log, err := New(&Config{Level: "debug", Format: "json", OutputPath: logPath})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.WithVendor("Anthropic").WithSettingKey("Anthropic/claude-3-haiku-20240307").Info("calling vendor")
	_ = log.Sync()

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("log file is empty")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}

	if entry["vendor"] != "Anthropic" {
		t.Errorf("vendor field = %v, want Anthropic", entry["vendor"])
	}
	if entry["setting_key"] != "Anthropic/claude-3-haiku-20240307" {
		t.Errorf("setting_key field = %v", entry["setting_key"])
	}
	if entry["msg"] != "calling vendor" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestWithHelpers(t *testing.T) {
	log, err := New(&Config{Level: "debug", Format: "console"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if log.WithOperation("paste") == nil {
		t.Error("WithOperation() returned nil")
	}
	if log.WithError(errors.New("boom")) == nil {
		t.Error("WithError() returned nil")
	}
	if log.WithFields("a", 1, "b", "two") == nil {
		t.Error("WithFields() returned nil")
	}
}

func TestInitAndGet(t *testing.T) {
	if err := Init(&Config{Level: "warn", Format: "console"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if Get().config.Level != "warn" {
		t.Errorf("global logger level = %s, want warn", Get().config.Level)
	}

	Get().WithVendor("Mistral").Warn("warn")
	// stderr may not support fsync
	_ = Sync()
}

func TestParseLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", "DEBUG"} {
		if _, err := parseLevel(level); err != nil {
			t.Errorf("parseLevel(%q) error = %v", level, err)
		}
	}

	if _, err := parseLevel("trace"); err == nil || !strings.Contains(err.Error(), "trace") {
		t.Errorf("parseLevel(trace) should fail naming the level, got %v", err)
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Info("discarded")
	log.WithVendor("OpenAI").Error("discarded")
}
