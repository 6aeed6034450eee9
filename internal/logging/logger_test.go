package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		name          string
		level         LogLevel
		expectedLevel slog.Level
	}{
		{name: "Debug level", level: LevelDebug, expectedLevel: slog.LevelDebug},
		{name: "Info level", level: LevelInfo, expectedLevel: slog.LevelInfo},
		{name: "Warn level", level: LevelWarn, expectedLevel: slog.LevelWarn},
		{name: "Error level", level: LevelError, expectedLevel: slog.LevelError},
		{name: "Upper case", level: LogLevel("DEBUG"), expectedLevel: slog.LevelDebug},
		{name: "Invalid level defaults to Info", level: LogLevel("invalid"), expectedLevel: slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseLevel(tc.level); got != tc.expectedLevel {
				t.Errorf("Expected %v, got %v", tc.expectedLevel, got)
			}
		})
	}
}

func TestSetupLoggerFiltersBelowLevel(t *testing.T) {
	originalLogger := defaultLogger
	defer func() {
		defaultLogger = originalLogger
		slog.SetDefault(originalLogger)
	}()

	var buf bytes.Buffer
	SetupLogger(&buf, LevelWarn)

	Info("card rendered", "issue_id", 4)
	Warn("image unavailable", "url", "https://img/1.png")

	output := buf.String()
	if strings.Contains(output, "card rendered") {
		t.Errorf("Info message should be filtered at warn level: %s", output)
	}
	if !strings.Contains(output, "image unavailable") || !strings.Contains(output, "WARN") {
		t.Errorf("Expected warn message in output, got: %s", output)
	}
}

func TestSetupLoggerJSON(t *testing.T) {
	originalLogger := defaultLogger
	defer func() {
		defaultLogger = originalLogger
		slog.SetDefault(originalLogger)
	}()

	var buf bytes.Buffer
	SetupLoggerWithFormat(&buf, LevelDebug, FormatJSON)

	Debug("status map built", "count", 7)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "status map built" {
		t.Errorf("Unexpected msg: %v", entry["msg"])
	}
	if entry["count"] != float64(7) {
		t.Errorf("Unexpected count: %v", entry["count"])
	}
}

func TestMaskSensitive(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Empty string", input: "", expected: "<not set>"},
		{name: "Short string", input: "abc", expected: "<set>"},
		{name: "Exactly 4 characters", input: "abcd", expected: "<set>"},
		{name: "Access token", input: "eyJhbGciOiJIUzI1NiJ9", expected: "eyJh...***"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if result := MaskSensitive(tc.input); result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}
