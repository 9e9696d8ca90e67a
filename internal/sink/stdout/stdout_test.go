package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/crimson-sun/waflog/internal/sink"
	"github.com/crimson-sun/waflog/internal/testdata"
)

func TestOutputCompactJSON(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf, false, false)
	out.Write(context.Background(), testdata.Entry(403))

	// Should be single line (NDJSON).
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var m map[string]map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if m["general_request_data"]["http_status"] != float64(403) {
		t.Fatalf("expected http_status=403, got %v", m["general_request_data"]["http_status"])
	}
	if m["ml_attack_detection"]["attack_class"] != "SQLi" {
		t.Fatalf("expected attack_class=SQLi, got %v", m["ml_attack_detection"]["attack_class"])
	}
}

func TestOutputPrettyJSON(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf, true, false)
	out.Write(context.Background(), testdata.Entry(200))

	// Pretty JSON should have multiple lines with indentation.
	if !strings.Contains(buf.String(), "  ") {
		t.Fatal("expected indented output for pretty mode")
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected multi-line pretty output, got %d lines", len(lines))
	}
}

func TestOutputSummary(t *testing.T) {
	var buf bytes.Buffer
	out := New(&buf, false, true)
	out.Write(context.Background(), testdata.Entry(403))

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := m["general_request_data"]; ok {
		t.Fatal("summary mode should not write the full entry")
	}
	if m["status"] != float64(403) || m["attack_class"] != "SQLi" || m["path"] != "/login" {
		t.Fatalf("unexpected summary: %v", m)
	}
}

func TestRegistered(t *testing.T) {
	ctor, err := sink.Get("stdout")
	if err != nil {
		t.Fatalf("stdout sink not registered: %v", err)
	}
	s, err := ctor(sink.Config{Name: "stdout"})
	if err != nil {
		t.Fatalf("constructor error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}
