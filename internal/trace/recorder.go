package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Event types recorded by the agent.
const (
	EventScan       = "scan"
	EventInjection  = "injection"
	EventActivation = "activation"
	EventDownload   = "download"
	EventBatch      = "batch_download"
	EventNotify     = "notification"
)

// Event is a single record in the agent's flight recorder.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
}

// Recorder writes a rotating JSONL trace of everything the agent does to
// the host page and the download service. Traces are the first thing to
// read when a scan loop or a stuck control is reported.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	dir     string
	keep    int
}

// NewRecorder creates a recorder that keeps the newest `keep` trace files
// under dir. A nil *Recorder is valid and drops every event, so callers
// never need to guard Log calls.
func NewRecorder(dir string, keep int) (*Recorder, error) {
	if dir == "" {
		dir = "data/traces"
	}
	if keep <= 0 {
		keep = 3
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{dir: dir, keep: keep}, nil
}

// Start opens a fresh trace file for this agent run, rotating old ones.
func (r *Recorder) Start(runID string) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}

	name := fmt.Sprintf("agent_%s_%d.jsonl", runID, time.Now().UnixMilli())
	f, err := os.Create(filepath.Join(r.dir, name))
	if err != nil {
		return err
	}

	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Log appends one event to the current trace. Safe on a nil or unstarted
// recorder.
func (r *Recorder) Log(eventType string, data any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil {
		return
	}
	_ = r.encoder.Encode(Event{Timestamp: time.Now(), Type: eventType, Data: data})
}

// rotate keeps only the newest keep-1 files, making room for the next one.
// Caller holds r.mu.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}

	type traceFile struct {
		name string
		mod  time.Time
	}
	var traces []traceFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, traceFile{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool { return traces[i].mod.After(traces[j].mod) })

	for i := r.keep - 1; i < len(traces); i++ {
		if i < 0 {
			continue
		}
		_ = os.Remove(filepath.Join(r.dir, traces[i].name))
	}
	return nil
}

// Close finishes the current trace file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	return err
}
