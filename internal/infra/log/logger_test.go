package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	prod := newLogger("prod", &buf, false)
	if prod.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %v", prod.GetLevel())
	}
	dev := newLogger("dev", &buf, false)
	if dev.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v", dev.GetLevel())
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("prod", &buf, false)
	logger.Info().Str("component", "test").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "test" || entry["message"] != "hello" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("expected timestamp field")
	}
}
