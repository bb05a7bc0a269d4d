package blissful

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMalformedResponse marks payloads that are not valid JSON or violate
// the expected schema. Callers treat it the same as a network failure.
var ErrMalformedResponse = errors.New("malformed service response")

const maxResponseBytes = 1 << 20

// Client talks to the Blissful download microservice over its JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the given base URL (e.g. http://localhost:7373).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AlbumInfo is the metadata payload for one album known to Lidarr.
type AlbumInfo struct {
	Success        bool   `json:"success"`
	Title          string `json:"title,omitempty"`
	Artist         string `json:"artist,omitempty"`
	ForeignAlbumID string `json:"foreignAlbumId,omitempty"`
	LidarrAlbumID  *int   `json:"lidarrAlbumId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// TrackRequest is the body for the single-item download endpoint. Optional
// fields are omitted entirely when unknown; the service fills defaults.
type TrackRequest struct {
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	Album       string `json:"album,omitempty"`
	AlbumID     *int   `json:"album_id,omitempty"`
	TrackNumber *int   `json:"track_number,omitempty"`
}

// TrackResult is the service's verdict on a single-item download.
type TrackResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
	FilePath        string `json:"file_path,omitempty"`
	RescanTriggered bool   `json:"rescan_triggered,omitempty"`
	Error           string `json:"error,omitempty"`
}

// AlbumRequest is the body for the batch download endpoint.
type AlbumRequest struct {
	Artist string       `json:"artist"`
	Album  string       `json:"album"`
	Tracks []AlbumTrack `json:"tracks"`
}

// AlbumTrack names one track inside a batch request.
type AlbumTrack struct {
	Title string `json:"title"`
}

// AlbumResult carries per-batch counts. Failed tracks are not retried by
// the service; callers re-invoke per item when they want finer retries.
type AlbumResult struct {
	Success     bool   `json:"success"`
	TotalTracks int    `json:"total_tracks"`
	Successful  int    `json:"successful"`
	Failed      int    `json:"failed"`
	Error       string `json:"error,omitempty"`
}

// Health reports service readiness and tool availability.
type Health struct {
	Status          string `json:"status"`
	FFmpegAvailable bool   `json:"ffmpeg_available"`
	YtdlpAvailable  bool   `json:"ytdlp_available"`
}

// GetAlbumInfo fetches metadata for one album by its foreign (GUID) ID.
// A success:false payload is returned as a value, not an error; transport
// and decoding problems are errors.
func (c *Client) GetAlbumInfo(ctx context.Context, albumID string) (*AlbumInfo, error) {
	var info AlbumInfo
	path := "/api/album-info/" + url.PathEscape(albumID)
	if err := c.getJSON(ctx, path, &info); err != nil {
		return nil, err
	}
	if info.Success && (info.Title == "" || info.Artist == "") {
		return nil, fmt.Errorf("%w: album-info missing title or artist", ErrMalformedResponse)
	}
	return &info, nil
}

// DownloadTrack requests a single-item download.
func (c *Client) DownloadTrack(ctx context.Context, req TrackRequest) (*TrackResult, error) {
	if req.Artist == "" || req.Title == "" {
		return nil, errors.New("artist and title are required")
	}
	var res TrackResult
	if err := c.postJSON(ctx, "/api/download-track", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DownloadAlbum requests a batch download of every listed track.
func (c *Client) DownloadAlbum(ctx context.Context, req AlbumRequest) (*AlbumResult, error) {
	if req.Artist == "" || req.Album == "" {
		return nil, errors.New("artist and album are required")
	}
	if len(req.Tracks) == 0 {
		return nil, errors.New("at least one track is required")
	}
	var res AlbumResult
	if err := c.postJSON(ctx, "/api/download-album", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetHealth probes the service health endpoint.
func (c *Client) GetHealth(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// GetSettings reads the service's persisted key/value settings. The agent
// reads these once at startup; it never writes them.
func (c *Client) GetSettings(ctx context.Context) (map[string]any, error) {
	var settings map[string]any
	if err := c.getJSON(ctx, "/api/config", &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes the request and decodes the body. Non-2xx responses are
// still decoded: the service reports failures as {success:false, error}
// bodies with 4xx statuses, and those must surface as values.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s %s returned status %d", ErrMalformedResponse, req.Method, req.URL.Path, resp.StatusCode)
	}
	return nil
}
