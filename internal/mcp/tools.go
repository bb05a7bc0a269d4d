package mcp

import (
	"context"
	"fmt"

	"blissful-agent/internal/agent"
	"blissful-agent/internal/blissful"
)

// AgentControl is the slice of the agent the control surface drives.
type AgentControl interface {
	Status() agent.Status
	ForceScan(ctx context.Context) uint64
	DownloadTrackByRef(ctx context.Context, ref string) agent.TrackOutcome
	DownloadAlbumBatch(ctx context.Context, artist, album string, titles []string) agent.BatchOutcome
}

// HealthChecker probes the download service.
type HealthChecker interface {
	GetHealth(ctx context.Context) (*blissful.Health, error)
}

type AgentStatusTool struct {
	agent AgentControl
}

func (t *AgentStatusTool) Name() string { return "agent-status" }
func (t *AgentStatusTool) Description() string {
	return `Report the agent's runtime state: uptime, scan counter, number of
live injected controls, and the cached album context (if any).

Returns: {uptime_seconds, scan_token, live_controls, cached_album, cached_artist}.`
}
func (t *AgentStatusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *AgentStatusTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return t.agent.Status(), nil
}

type ForceScanTool struct {
	agent AgentControl
}

func (t *ForceScanTool) Name() string { return "force-scan" }
func (t *ForceScanTool) Description() string {
	return `Run a classification and injection pass over the library page
immediately, without waiting for a DOM mutation. Safe to call repeatedly;
a scan over an already-annotated page changes nothing.

Returns: {scan_token} - the monotonically increasing scan counter.`
}
func (t *ForceScanTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ForceScanTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	token := t.agent.ForceScan(ctx)
	return map[string]interface{}{"scan_token": token}, nil
}

type DownloadTrackTool struct {
	agent AgentControl
}

func (t *DownloadTrackTool) Name() string { return "download-track" }
func (t *DownloadTrackTool) Description() string {
	return `Activate an injected control by its reference, exactly as if the
user clicked it: the control goes Pending, the download runs, and the
control reflects the outcome.

HOW TO GET ref: agent-status reports live control counts; control
references appear in the trace log and in scan output.

Returns: {success, title, error}.`
}
func (t *DownloadTrackTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"ref": map[string]interface{}{
				"type":        "string",
				"description": "Control reference to activate",
			},
		},
		"required": []string{"ref"},
	}
}
func (t *DownloadTrackTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ref := getStringArg(args, "ref")
	if ref == "" {
		return nil, fmt.Errorf("ref is required")
	}
	return t.agent.DownloadTrackByRef(ctx, ref), nil
}

type DownloadAlbumTool struct {
	agent AgentControl
}

func (t *DownloadAlbumTool) Name() string { return "download-album" }
func (t *DownloadAlbumTool) Description() string {
	return `Request a whole-album download in one service call. Partial
failures are reported in the counts, not retried.

Returns: {success, total, successful, failed, error}.`
}
func (t *DownloadAlbumTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"artist": map[string]interface{}{
				"type":        "string",
				"description": "Artist name",
			},
			"album": map[string]interface{}{
				"type":        "string",
				"description": "Album title",
			},
			"tracks": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Track titles to download",
			},
		},
		"required": []string{"artist", "album", "tracks"},
	}
}
func (t *DownloadAlbumTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	artist := getStringArg(args, "artist")
	album := getStringArg(args, "album")
	titles := getStringListArg(args, "tracks")
	if artist == "" || album == "" {
		return nil, fmt.Errorf("artist and album are required")
	}
	if len(titles) == 0 {
		return nil, fmt.Errorf("tracks must list at least one title")
	}
	return t.agent.DownloadAlbumBatch(ctx, artist, album, titles), nil
}

type ServiceHealthTool struct {
	health HealthChecker
}

func (t *ServiceHealthTool) Name() string { return "service-health" }
func (t *ServiceHealthTool) Description() string {
	return `Probe the download service's /api/health endpoint.

Returns: {status, ffmpeg_available, ytdlp_available}.`
}
func (t *ServiceHealthTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ServiceHealthTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	health, err := t.health.GetHealth(ctx)
	if err != nil {
		return nil, err
	}
	return health, nil
}

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getStringListArg(args map[string]interface{}, key string) []string {
	val, ok := args[key]
	if !ok {
		return nil
	}
	raw, ok := val.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
