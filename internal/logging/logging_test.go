package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithoutFile(t *testing.T) {
	logger, closer := New(Config{Level: "info", Format: "json"})
	if logger == nil {
		t.Fatal("nil logger")
	}
	if closer != nil {
		t.Error("expected nil closer without a file path")
	}
}

func TestNewWithFileWritesRotatedLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trackgate.log")

	logger, closer := New(Config{Level: "debug", Format: "json", FilePath: path})
	if closer == nil {
		t.Fatal("expected a closer for the rotated file")
	}
	logger.Info("hello", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file missing record: %s", data)
	}
}

func TestTextFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trackgate.log")

	logger, closer := New(Config{Level: "info", Format: "text", FilePath: path})
	logger.Info("plain")
	closer.Close() //nolint:errcheck

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "msg=plain") {
		t.Errorf("expected text format, got: %s", data)
	}
}
