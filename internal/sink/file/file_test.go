package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/crimson-sun/waflog/internal/model"
	"github.com/crimson-sun/waflog/internal/sink"
	"github.com/crimson-sun/waflog/internal/testdata"
)

func TestWriteProducesValidNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := out.Write(context.Background(), testdata.Entry(403)); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	out.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	for i, line := range lines {
		var e model.Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Errorf("line %d: invalid JSON: %v", i, err)
		}
		if e.Detection.AttackClass != model.AttackSQLi {
			t.Errorf("line %d: attack_class = %q, want SQLi", i, e.Detection.AttackClass)
		}
	}
}

func TestRotationTriggersAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")

	// Each full entry is well over 500 bytes, so every write after the first rotates.
	out, err := New(path, WithMaxSize(500))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := out.Write(context.Background(), testdata.Entry(200)); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	out.Close()

	for _, p := range []string{path, path + ".1", path + ".2"} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", filepath.Base(p), err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", filepath.Base(p))
		}
	}
}

func TestCloseFlushesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	out.Write(context.Background(), testdata.Entry(200))
	out.Close()

	data, _ := os.ReadFile(path)
	if len(data) == 0 {
		t.Error("file is empty, Close did not flush buffered data")
	}
}

func TestSummaryStripsDetail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, WithSummary())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	out.Write(context.Background(), testdata.Entry(403))
	out.Close()

	data, _ := os.ReadFile(path)
	var m map[string]any
	json.Unmarshal([]byte(strings.TrimSpace(string(data))), &m)

	if _, ok := m["anomaly_detection_metrics"]; ok {
		t.Error("summary should not include anomaly metrics")
	}
	if m["status"] != float64(403) {
		t.Errorf("status = %v, want 403", m["status"])
	}
}

func TestConcurrentWritesSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.Write(context.Background(), testdata.Entry(200))
		}()
	}
	wg.Wait()
	out.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	for i, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Fatalf("line %d is not valid JSON", i)
		}
	}
}

func TestAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	os.WriteFile(path, []byte("{}\n"), 0644)

	out, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	out.Write(context.Background(), testdata.Entry(200))
	out.Close()

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "{}\n") {
		t.Error("existing content was truncated")
	}
}

func TestFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.jsonl")
	s, err := fromConfig(sink.Config{Name: "file", Endpoint: path, Extra: map[string]string{"max_size": "1024", "format": "summary"}})
	if err != nil {
		t.Fatalf("fromConfig error: %v", err)
	}
	o := s.(*Output)
	if o.maxSize != 1024 || !o.summary {
		t.Errorf("options not applied: maxSize=%d summary=%v", o.maxSize, o.summary)
	}
	s.Close()

	if _, err := fromConfig(sink.Config{Name: "file"}); err == nil {
		t.Error("expected error without endpoint")
	}
	if _, err := fromConfig(sink.Config{Name: "file", Endpoint: path, Extra: map[string]string{"max_size": "big"}}); err == nil {
		t.Error("expected error for invalid max_size")
	}
}

func TestRegistered(t *testing.T) {
	if _, err := sink.Get("file"); err != nil {
		t.Fatalf("file sink not registered: %v", err)
	}
}
