package trace

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func traceFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".jsonl" {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestRecorderWritesEvents(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, 3)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	if err := r.Start("run1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	r.Log(EventScan, map[string]any{"token": 1, "injected": 2})
	r.Log(EventDownload, map[string]any{"title": "Enter Sandman", "success": true})
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files := traceFiles(t, dir)
	if len(files) != 1 {
		t.Fatalf("expected 1 trace file, got %d", len(files))
	}

	f, err := os.Open(filepath.Join(dir, files[0]))
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventScan || events[1].Type != EventDownload {
		t.Errorf("unexpected event types: %s, %s", events[0].Type, events[1].Type)
	}
}

func TestRecorderRotation(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, 2)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := r.Start("run"); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		r.Log(EventScan, nil)
		// Distinct mtimes so rotation ordering is stable.
		time.Sleep(10 * time.Millisecond)
	}
	r.Close()

	files := traceFiles(t, dir)
	if len(files) > 2 {
		t.Errorf("expected at most 2 retained traces, got %d", len(files))
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	if err := r.Start("x"); err != nil {
		t.Errorf("nil Start: %v", err)
	}
	r.Log(EventScan, nil)
	if err := r.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestLogBeforeStartIsDropped(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir, 3)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	r.Log(EventScan, nil)
	if files := traceFiles(t, dir); len(files) != 0 {
		t.Errorf("expected no trace files before Start, got %v", files)
	}
}
