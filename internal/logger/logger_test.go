package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"WARN":    logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestComponent_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	Configure("info", &buf)
	defer Configure("info", os.Stdout)

	Component("pipeline").WithField("tone", "T05").Info("classified")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "pipeline" {
		t.Errorf("Expected component field, got %v", entry["component"])
	}
	if entry["tone"] != "T05" {
		t.Errorf("Expected tone field, got %v", entry["tone"])
	}
}
