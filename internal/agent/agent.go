package agent

import (
	"context"
	"time"

	"blissful-agent/internal/config"
	"blissful-agent/internal/dom"
	"blissful-agent/internal/trace"
)

// Service is everything the agent needs from the download microservice.
type Service interface {
	AlbumInfoFetcher
	DownloadService
}

// Agent owns one page session: the metadata cache, the scan scheduler,
// the control registry, and the orchestrator. Constructed once per run;
// there are no package-level statics.
type Agent struct {
	cfg config.AgentConfig

	page         Page
	bus          *Bus
	cache        *MetadataCache
	controls     *ControlRegistry
	filter       *dom.SelfMutationFilter
	injector     *ControlInjector
	scheduler    *Scheduler
	orchestrator *Orchestrator
	notifier     Notifier
	rec          *trace.Recorder

	startedAt time.Time
}

// New wires a complete agent. rec may be nil to disable tracing.
func New(cfg config.AgentConfig, page Page, service Service, rec *trace.Recorder) *Agent {
	bus := NewBus()
	cache := NewMetadataCache(service)
	controls := NewControlRegistry()
	filter := dom.NewSelfMutationFilter(cfg.TagRetention(), dom.StaticToastTag, dom.StaticStyleTag)
	injector := NewControlInjector(page, filter, controls)
	scheduler := NewScheduler(page, cache, injector, controls, filter, rec)
	notifier := NewNotifier(page, cfg.NotificationsEnabled())
	orchestrator := NewOrchestrator(service, cache, controls, page, notifier, bus, rec, cfg.RescanDelay(), cfg.SuccessGrace())

	a := &Agent{
		cfg:          cfg,
		page:         page,
		bus:          bus,
		cache:        cache,
		controls:     controls,
		filter:       filter,
		injector:     injector,
		scheduler:    scheduler,
		orchestrator: orchestrator,
		notifier:     notifier,
		rec:          rec,
		startedAt:    time.Now(),
	}

	bus.Subscribe(TopicScanRequested, func(Event) {
		go a.scheduler.Scan(context.Background())
	})

	return a
}

// Run drives the agent until ctx is done or the event channel closes. The
// first scan waits out the settle delay so the SPA can finish its own
// initial render.
func (a *Agent) Run(ctx context.Context, events <-chan PageEvent) error {
	settle := time.NewTimer(a.cfg.SettleDelay())
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-settle.C:
			a.scheduler.Scan(ctx)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch {
			case ev.Mutation != nil:
				a.scheduler.OnMutation(ctx, *ev.Mutation)
			case ev.ActivateRef != "":
				// Downloads are slow; never block the event loop on them.
				go a.orchestrator.HandleActivation(ctx, ev.ActivateRef)
			}
		}
	}
}

// ForceScan runs a scan immediately and returns the resulting scan token.
func (a *Agent) ForceScan(ctx context.Context) uint64 {
	a.scheduler.Scan(ctx)
	return a.scheduler.Token()
}

// DownloadTrackByRef activates a control as if the user clicked it.
func (a *Agent) DownloadTrackByRef(ctx context.Context, ref string) TrackOutcome {
	return a.orchestrator.HandleActivation(ctx, ref)
}

// DownloadAlbumBatch requests a batch download for the given titles.
func (a *Agent) DownloadAlbumBatch(ctx context.Context, artist, album string, titles []string) BatchOutcome {
	return a.orchestrator.DownloadBatch(ctx, artist, album, titles)
}

// Status is a snapshot of the agent's runtime state for the control
// surface and logs.
type Status struct {
	UptimeSeconds int64  `json:"uptime_seconds"`
	ScanToken     uint64 `json:"scan_token"`
	LiveControls  int    `json:"live_controls"`
	CachedAlbum   string `json:"cached_album,omitempty"`
	CachedArtist  string `json:"cached_artist,omitempty"`
}

// Status reports current runtime state.
func (a *Agent) Status() Status {
	st := Status{
		UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
		ScanToken:     a.scheduler.Token(),
		LiveControls:  a.controls.Count(),
	}
	if meta, ok := a.cache.Cached(); ok {
		st.CachedAlbum = meta.Title
		st.CachedArtist = meta.Artist
	}
	return st
}
