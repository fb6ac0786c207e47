package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)
	log.Info().Str("component", "test").Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["message"] != "hello" {
		t.Errorf("message = %v, expected %q", entry["message"], "hello")
	}
	if entry["component"] != "test" {
		t.Errorf("component = %v, expected %q", entry["component"], "test")
	}
	if _, ok := entry["time"]; !ok {
		t.Error("log entry has no timestamp")
	}
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name     string
		debug    bool
		expected zerolog.Level
	}{
		{"default", false, zerolog.InfoLevel},
		{"debug", true, zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(tt.debug)
			if log.GetLevel() != tt.expected {
				t.Errorf("level = %v, expected %v", log.GetLevel(), tt.expected)
			}
		})
	}
}

func TestDebugSuppressedByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf).Level(zerolog.InfoLevel)
	log.Debug().Msg("invisible")
	log.Info().Msg("visible")

	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Error("debug entry leaked through the info level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("info entry missing")
	}
}
