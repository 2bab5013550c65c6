package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogsJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.log")
	logger, err := New(Config{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("task created", map[string]any{"taskId": "abc123"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("Unmarshal: %v (data=%s)", err, data)
	}
	if entry["msg"] != "task created" {
		t.Fatalf("msg = %v, want task created", entry["msg"])
	}
	if entry["taskId"] != "abc123" {
		t.Fatalf("taskId = %v, want abc123", entry["taskId"])
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("debug").String() != "DEBUG" {
		t.Fatalf("parseLevel(debug) = %v", parseLevel("debug"))
	}
	if parseLevel("bogus").String() != "INFO" {
		t.Fatalf("parseLevel(bogus) = %v, want INFO default", parseLevel("bogus"))
	}
}
