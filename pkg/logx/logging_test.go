package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSinkWritesStructuredLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	svc, log := New(Config{
		Level:   "debug",
		Console: false,
		File:    FileConfig{Enabled: true, Path: path},
	})

	log.Info("schedule rebuilt", Int("triggers", 4), String("tz", "UTC"))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, `"message":"schedule rebuilt"`) {
		t.Fatalf("message missing from file sink: %s", out)
	}
	if !strings.Contains(out, `"triggers":4`) || !strings.Contains(out, `"tz":"UTC"`) {
		t.Fatalf("fields missing from file sink: %s", out)
	}
}

func TestApplyUnopenableFileKeepsLogging(t *testing.T) {
	svc, log := New(Config{Level: "info", Console: false})
	defer svc.Close()

	// Parent directory does not exist, so the file sink cannot open; the
	// service must fall back to a working root instead of failing.
	svc.Apply(Config{
		Level:   "info",
		Console: false,
		File:    FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "missing", "bot.log")},
	})
	log.Info("still alive")
}

func TestApplySwitchesLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	cfg := Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}}
	svc, log := New(cfg)

	log.Debug("hidden")
	cfg.Level = "debug"
	svc.Apply(cfg)
	log.Debug("visible")
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at warn level: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("debug line missing after level change: %s", out)
	}
}

func TestZeroValueAndNopAreSafe(t *testing.T) {
	t.Parallel()
	var zero Logger
	zero.Info("no sink")
	zero.With(String("k", "v")).Error("still no sink")

	Nop().Warn("nothing")
	if zero.IsZero() != true {
		t.Fatal("zero logger not reported as zero")
	}
	if Nop().IsZero() {
		t.Fatal("Nop logger reported as zero")
	}
}
