package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// SetupLogger tests
// ---------------------------------------------------------------------------

func TestSetupLogger_DoesNotPanicForAllCombinations(t *testing.T) {
	formats := []string{"json", "text", "JSON", "TEXT", "", "unknown"}
	levels := []string{"debug", "info", "warn", "warning", "error", "ERROR", "", "unknown"}
	outputs := []string{"stdout", "stderr", ""}

	for _, format := range formats {
		for _, level := range levels {
			for _, output := range outputs {
				t.Run(format+"/"+level+"/"+output, func(t *testing.T) {
					defer func() {
						if r := recover(); r != nil {
							t.Errorf("SetupLogger(%q, %q, %q) panicked: %v", format, level, output, r)
						}
					}()
					SetupLogger(format, level, output)
				})
			}
		}
	}
	// Restore a sensible default so other tests in this binary are unaffected.
	SetupLogger("text", "error", "stderr")
}

func TestSetupLogger_JSONFormat_ProducesValidJSON(t *testing.T) {
	var buf bytes.Buffer

	// SetupLogger writes to stdout/stderr, so we validate the JSON code path by
	// running the same handler construction over a local buffer. This is the
	// code path exercised by SetupLogger("json", "info", "stdout").
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)
	logger.Info("test message", "key", "value")

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("JSON handler produced no output")
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		t.Fatalf("JSON handler output is not valid JSON: %v\noutput: %s", err, line)
	}

	if obj["msg"] != "test message" {
		t.Errorf("expected msg=test message, got %v", obj["msg"])
	}
	if obj["key"] != "value" {
		t.Errorf("expected key=value, got %v", obj["key"])
	}
}

func TestSetupLogger_TextFormat_ProducesKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(handler)
	logger.Info("text test", "env", "development")

	line := buf.String()
	if !strings.Contains(line, "text test") {
		t.Errorf("text handler output does not contain message: %q", line)
	}
	if !strings.Contains(line, "env=development") {
		t.Errorf("text handler output does not contain env=development: %q", line)
	}
}

func TestSetupLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	// At warn level, Info records should be suppressed.
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(handler)
	logger.Info("should be suppressed")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be suppressed") {
		t.Error("Info record appeared despite LevelWarn filter")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("Warn record was unexpectedly suppressed")
	}
}

func TestSetupLogger_DebugLevelAddsSource(t *testing.T) {
	// When level=debug, AddSource=true.  We verify this indirectly: the
	// SetupLogger("json","debug","stderr") call must not panic and the code
	// path that sets AddSource is exercised.
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("SetupLogger with debug+json panicked: %v", r)
		}
		SetupLogger("text", "error", "stderr") // reset
	}()
	SetupLogger("json", "debug", "stderr")
}
