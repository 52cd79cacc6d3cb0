package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitLoggerLevels(t *testing.T) {
	t.Run("Default level is info", func(t *testing.T) {
		InitLogger(false, "")
		logger := slog.Default()
		if !logger.Enabled(context.Background(), slog.LevelInfo) {
			t.Error("Expected info level to be enabled by default")
		}
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("Expected debug level to be disabled by default")
		}
	})

	t.Run("Debug enables debug level", func(t *testing.T) {
		InitLogger(true, "")
		if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			t.Error("Expected debug level to be enabled")
		}
	})
}

func TestInitLoggerFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.log")
	InitLogger(false, path)
	defer InitLogger(false, "")

	slog.Info("agent finished", "parent", "MOB-1", "identifier", "MOB-2")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := strings.TrimSpace(string(data))
	if line == "" {
		t.Fatal("expected a log record in the file sink")
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.Split(line, "\n")[0]), &record); err != nil {
		t.Fatalf("log record is not JSON: %v", err)
	}
	if record["msg"] != "agent finished" {
		t.Errorf("unexpected msg: %v", record["msg"])
	}
	if record["parent"] != "MOB-1" {
		t.Errorf("structured attr lost: %v", record["parent"])
	}
}

func TestForParent(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer InitLogger(false, "")

	ForParent("MOB-9").Info("iteration start")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log record is not JSON: %v", err)
	}
	if record["parent"] != "MOB-9" {
		t.Errorf("expected parent attr, got %v", record)
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&a, nil),
		slog.NewJSONHandler(&b, nil),
	}}
	logger := slog.New(h)

	logger.Info("hello")

	if a.Len() == 0 || b.Len() == 0 {
		t.Error("expected both handlers to receive the record")
	}
}

func TestMultiHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{slog.NewJSONHandler(&buf, nil)}}
	logger := slog.New(h).With("task_id", "t1")

	logger.Info("spawn")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log record is not JSON: %v", err)
	}
	if record["task_id"] != "t1" {
		t.Errorf("expected task_id attr, got %v", record)
	}
}
