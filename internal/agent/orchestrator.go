package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"blissful-agent/internal/blissful"
	"blissful-agent/internal/trace"
)

// DownloadService is the slice of the service client the orchestrator uses.
type DownloadService interface {
	DownloadTrack(ctx context.Context, req blissful.TrackRequest) (*blissful.TrackResult, error)
	DownloadAlbum(ctx context.Context, req blissful.AlbumRequest) (*blissful.AlbumResult, error)
}

// TrackOutcome is the orchestrator's verdict on one activation.
type TrackOutcome struct {
	Success bool   `json:"success"`
	Title   string `json:"title,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchOutcome mirrors the service's batch counts verbatim.
type BatchOutcome struct {
	Success    bool   `json:"success"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// Orchestrator drives download requests and the control state machine
// around them: optimistic Pending on activation, Success with deferred
// self-removal, Failure back to a retryable Idle.
type Orchestrator struct {
	service  DownloadService
	cache    *MetadataCache
	controls *ControlRegistry
	page     Page
	notify   Notifier
	bus      *Bus
	rec      *trace.Recorder

	// rescanDelay is the settle wait after a successful download before the
	// forced metadata refresh and rescan; successGrace is how long a
	// Success control lingers before removing itself.
	rescanDelay  time.Duration
	successGrace time.Duration
}

// NewOrchestrator wires the orchestrator. rec may be nil.
func NewOrchestrator(service DownloadService, cache *MetadataCache, controls *ControlRegistry, page Page, notify Notifier, bus *Bus, rec *trace.Recorder, rescanDelay, successGrace time.Duration) *Orchestrator {
	return &Orchestrator{
		service:      service,
		cache:        cache,
		controls:     controls,
		page:         page,
		notify:       notify,
		bus:          bus,
		rec:          rec,
		rescanDelay:  rescanDelay,
		successGrace: successGrace,
	}
}

// HandleActivation runs the single-item download for the control's bound
// candidate. Identical concurrent requests are not deduplicated; the
// Pending state on this control is the only double-submit guard.
func (o *Orchestrator) HandleActivation(ctx context.Context, ref string) TrackOutcome {
	cand, ok := o.controls.Candidate(ref)
	if !ok {
		return TrackOutcome{Error: "unknown control"}
	}
	if !o.controls.Activate(ref) {
		return TrackOutcome{Error: "control is busy"}
	}
	_ = o.page.SetControlState(ctx, ref, StatePending)
	o.rec.Log(trace.EventActivation, map[string]any{"ref": ref, "title": cand.Title})

	req := buildTrackRequest(cand)
	res, err := o.service.DownloadTrack(ctx, req)
	if err != nil {
		return o.failActivation(ctx, ref, cand, err.Error())
	}
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "service reported failure"
		}
		return o.failActivation(ctx, ref, cand, reason)
	}

	o.controls.Succeed(ref)
	_ = o.page.SetControlState(ctx, ref, StateSuccess)
	o.notify.Notify(ctx, NotifySuccess, fmt.Sprintf("Downloaded %s - %s", cand.Artist, cand.Title))
	o.rec.Log(trace.EventDownload, map[string]any{"title": cand.Title, "success": true})
	o.bus.Publish(Event{Topic: TopicDownloadCompleted, Payload: cand})

	time.AfterFunc(o.successGrace, func() {
		o.controls.Remove(ref)
		if err := o.page.RemoveControl(context.Background(), ref); err != nil {
			log.Printf("remove control %s: %v", ref, err)
		}
	})
	// Let the host notice the new file, then refresh its metadata and
	// rescan so remaining rows reflect reality. The refresh only runs
	// when the album's detail page is still the one being viewed; after
	// a navigation it would retarget the cache back to the old album.
	time.AfterFunc(o.rescanDelay, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if cand.AlbumForeignID != "" && o.stillViewing(refreshCtx, cand.AlbumForeignID) {
			if _, err := o.cache.Get(refreshCtx, cand.AlbumForeignID, true); err != nil {
				log.Printf("post-download metadata refresh: %v", err)
			}
		}
		o.bus.Publish(Event{Topic: TopicScanRequested})
	})

	return TrackOutcome{Success: true, Title: cand.Title}
}

// stillViewing reports whether the tab still shows the detail page for
// the given album.
func (o *Orchestrator) stillViewing(ctx context.Context, albumID string) bool {
	rawURL, err := o.page.URL(ctx)
	if err != nil {
		return false
	}
	id, ok := ResolveAlbumID(rawURL)
	return ok && id == albumID
}

func (o *Orchestrator) failActivation(ctx context.Context, ref string, cand RowCandidate, reason string) TrackOutcome {
	o.controls.Fail(ref)
	_ = o.page.SetControlState(ctx, ref, StateFailure)
	o.notify.Notify(ctx, NotifyError, fmt.Sprintf("Download failed for %s: %s", cand.Title, reason))
	o.rec.Log(trace.EventDownload, map[string]any{"title": cand.Title, "success": false, "error": reason})
	return TrackOutcome{Title: cand.Title, Error: reason}
}

// DownloadBatch requests every listed track in one service call and emits
// a single aggregate notification. Failed tracks are not retried here;
// callers re-invoke per item when they want finer-grained retries.
func (o *Orchestrator) DownloadBatch(ctx context.Context, artist, album string, titles []string) BatchOutcome {
	tracks := make([]blissful.AlbumTrack, 0, len(titles))
	for _, t := range titles {
		tracks = append(tracks, blissful.AlbumTrack{Title: t})
	}

	res, err := o.service.DownloadAlbum(ctx, blissful.AlbumRequest{Artist: artist, Album: album, Tracks: tracks})
	if err != nil {
		o.notify.Notify(ctx, NotifyError, fmt.Sprintf("Album download failed for %s: %v", album, err))
		o.rec.Log(trace.EventBatch, map[string]any{"album": album, "error": err.Error()})
		return BatchOutcome{Error: err.Error()}
	}
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "service reported failure"
		}
		o.notify.Notify(ctx, NotifyError, fmt.Sprintf("Album download failed for %s: %s", album, reason))
		o.rec.Log(trace.EventBatch, map[string]any{"album": album, "error": reason})
		return BatchOutcome{Error: reason}
	}

	out := BatchOutcome{
		Success:    true,
		Total:      res.TotalTracks,
		Successful: res.Successful,
		Failed:     res.Failed,
	}
	if res.Failed > 0 {
		o.notify.Notify(ctx, NotifyWarning,
			fmt.Sprintf("Album %s: %d/%d tracks downloaded, %d failed", album, res.Successful, res.TotalTracks, res.Failed))
	} else {
		o.notify.Notify(ctx, NotifySuccess,
			fmt.Sprintf("Album %s: all %d tracks downloaded", album, res.TotalTracks))
	}
	o.rec.Log(trace.EventBatch, map[string]any{
		"album": album, "total": res.TotalTracks, "successful": res.Successful, "failed": res.Failed,
	})
	return out
}

func buildTrackRequest(cand RowCandidate) blissful.TrackRequest {
	req := blissful.TrackRequest{
		Artist: cand.Artist,
		Title:  cand.Title,
		Album:  cand.Album,
	}
	if cand.LidarrAlbumID != nil {
		id := *cand.LidarrAlbumID
		req.AlbumID = &id
	}
	if cand.TrackNumber > 0 {
		n := cand.TrackNumber
		req.TrackNumber = &n
	}
	return req
}
