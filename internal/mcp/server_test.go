package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"blissful-agent/internal/agent"
	"blissful-agent/internal/blissful"
	"blissful-agent/internal/config"
)

type fakeControl struct {
	status       agent.Status
	scanToken    uint64
	trackOutcome agent.TrackOutcome
	batchOutcome agent.BatchOutcome

	lastRef    string
	lastArtist string
	lastAlbum  string
	lastTracks []string
}

func (f *fakeControl) Status() agent.Status { return f.status }
func (f *fakeControl) ForceScan(context.Context) uint64 {
	f.scanToken++
	return f.scanToken
}
func (f *fakeControl) DownloadTrackByRef(_ context.Context, ref string) agent.TrackOutcome {
	f.lastRef = ref
	return f.trackOutcome
}
func (f *fakeControl) DownloadAlbumBatch(_ context.Context, artist, album string, titles []string) agent.BatchOutcome {
	f.lastArtist = artist
	f.lastAlbum = album
	f.lastTracks = titles
	return f.batchOutcome
}

type fakeHealth struct {
	health *blissful.Health
	err    error
}

func (f *fakeHealth) GetHealth(context.Context) (*blissful.Health, error) {
	return f.health, f.err
}

func newTestServer(control *fakeControl, health *fakeHealth) *Server {
	cfg := config.DefaultConfig()
	cfg.Browser.DebuggerURL = "ws://localhost:9222"
	return NewServer(cfg, control, health)
}

func TestAllToolsRegistered(t *testing.T) {
	srv := newTestServer(&fakeControl{}, &fakeHealth{})

	for _, name := range []string{"agent-status", "force-scan", "download-track", "download-album", "service-health"} {
		if _, ok := srv.tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
	if len(srv.tools) != 5 {
		t.Errorf("expected 5 tools, got %d", len(srv.tools))
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	srv := newTestServer(&fakeControl{}, &fakeHealth{})
	if _, err := srv.ExecuteTool("no-such-tool", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestAgentStatusTool(t *testing.T) {
	control := &fakeControl{status: agent.Status{ScanToken: 7, LiveControls: 3, CachedAlbum: "Metallica"}}
	srv := newTestServer(control, &fakeHealth{})

	result, err := srv.ExecuteTool("agent-status", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	status, ok := result.(agent.Status)
	if !ok {
		t.Fatalf("unexpected result type %T", result)
	}
	if status.ScanToken != 7 || status.LiveControls != 3 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestForceScanTool(t *testing.T) {
	control := &fakeControl{}
	srv := newTestServer(control, &fakeHealth{})

	result, err := srv.ExecuteTool("force-scan", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	payload := result.(map[string]interface{})
	if payload["scan_token"] != uint64(1) {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestDownloadTrackTool(t *testing.T) {
	control := &fakeControl{trackOutcome: agent.TrackOutcome{Success: true, Title: "Enter Sandman"}}
	srv := newTestServer(control, &fakeHealth{})

	result, err := srv.ExecuteTool("download-track", map[string]interface{}{"ref": "c1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := result.(agent.TrackOutcome)
	if !out.Success || out.Title != "Enter Sandman" {
		t.Errorf("unexpected outcome %+v", out)
	}
	if control.lastRef != "c1" {
		t.Errorf("ref not forwarded, got %q", control.lastRef)
	}
}

func TestDownloadTrackToolRequiresRef(t *testing.T) {
	srv := newTestServer(&fakeControl{}, &fakeHealth{})
	if _, err := srv.ExecuteTool("download-track", map[string]interface{}{}); err == nil {
		t.Error("expected error without ref")
	}
}

func TestDownloadAlbumTool(t *testing.T) {
	control := &fakeControl{batchOutcome: agent.BatchOutcome{Success: true, Total: 2, Successful: 2}}
	srv := newTestServer(control, &fakeHealth{})

	result, err := srv.ExecuteTool("download-album", map[string]interface{}{
		"artist": "Metallica",
		"album":  "Metallica",
		"tracks": []interface{}{"Enter Sandman", "Sad but True"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := result.(agent.BatchOutcome)
	if out.Total != 2 || out.Successful != 2 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if len(control.lastTracks) != 2 || control.lastArtist != "Metallica" {
		t.Errorf("arguments not forwarded: %q %v", control.lastArtist, control.lastTracks)
	}
}

func TestDownloadAlbumToolValidation(t *testing.T) {
	srv := newTestServer(&fakeControl{}, &fakeHealth{})

	cases := []map[string]interface{}{
		{"album": "x", "tracks": []interface{}{"t"}},
		{"artist": "x", "tracks": []interface{}{"t"}},
		{"artist": "x", "album": "y"},
		{"artist": "x", "album": "y", "tracks": []interface{}{}},
	}
	for i, args := range cases {
		if _, err := srv.ExecuteTool("download-album", args); err == nil {
			t.Errorf("case %d: expected validation error for %v", i, args)
		}
	}
}

func TestServiceHealthTool(t *testing.T) {
	health := &fakeHealth{health: &blissful.Health{Status: "healthy", FFmpegAvailable: true, YtdlpAvailable: true}}
	srv := newTestServer(&fakeControl{}, health)

	result, err := srv.ExecuteTool("service-health", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := result.(*blissful.Health)
	if out.Status != "healthy" || !out.FFmpegAvailable {
		t.Errorf("unexpected health %+v", out)
	}
}

func TestServiceHealthToolError(t *testing.T) {
	health := &fakeHealth{err: errors.New("connection refused")}
	srv := newTestServer(&fakeControl{}, health)
	if _, err := srv.ExecuteTool("service-health", nil); err == nil {
		t.Error("expected probe error to surface")
	}
}

func TestMarshalToolPayload(t *testing.T) {
	payload := marshalToolPayload("agent-status", agent.Status{ScanToken: 5})
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if decoded["scan_token"] != float64(5) {
		t.Errorf("unexpected payload %v", decoded)
	}

	// Non-serializable payloads degrade to a structured error.
	payload = marshalToolPayload("bad-tool", map[string]interface{}{"fn": func() {}})
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("fallback payload not valid JSON: %v", err)
	}
	if decoded["success"] != false {
		t.Errorf("expected fallback error payload, got %v", decoded)
	}
}

func TestGetStringListArg(t *testing.T) {
	args := map[string]interface{}{
		"tracks": []interface{}{"a", "", 3, "b"},
	}
	got := getStringListArg(args, "tracks")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected list %v", got)
	}
	if getStringListArg(args, "missing") != nil {
		t.Error("missing key should yield nil")
	}
	if getStringListArg(map[string]interface{}{"tracks": "not-a-list"}, "tracks") != nil {
		t.Error("non-list value should yield nil")
	}
}
