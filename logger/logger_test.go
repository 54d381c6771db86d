package logger

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureReportLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("report", "text", "stderr", 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "marketfeed.log")
	log := Logger()
	if err := log.Configure("debug", "json", path, 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	log.WithComponent("test").Info("hello")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat log file: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected log file to contain output")
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestWarnCountsPerComponent(t *testing.T) {
	log := Logger()
	log.SetOutput(discard{})
	before := atomic.LoadInt64(&componentFor("warn_counter").warns)
	log.WithComponent("warn_counter").Warn("something degraded")
	if got := atomic.LoadInt64(&componentFor("warn_counter").warns); got != before+1 {
		t.Fatalf("warn count = %d, want %d", got, before+1)
	}
}

func TestReportFieldsIncludeStreams(t *testing.T) {
	RecordStreamMessage("test_stream", 42)
	fields := reportFields(context.Background())
	data, ok := fields["streams"].(map[string]map[string]int64)
	if !ok {
		t.Fatalf("streams field missing: %v", fields)
	}
	if data["test_stream"]["bytes"] < 42 {
		t.Fatalf("unexpected stream stats: %v", data["test_stream"])
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
