package agent

import (
	"context"
	"log"
	"sync"

	"blissful-agent/internal/dom"
	"blissful-agent/internal/trace"
)

// Scheduler owns the mutation-driven scan loop. It decides when to re-run
// classification and injection across the page without recursing on its
// own DOM writes: mutation batches that contain only tagged additions are
// ignored, and a pass that injects nothing is the natural fixed point.
type Scheduler struct {
	page     Page
	cache    *MetadataCache
	injector *ControlInjector
	controls *ControlRegistry
	filter   *dom.SelfMutationFilter
	rec      *trace.Recorder

	mu       sync.Mutex
	scanning bool
	dirty    bool
	token    uint64
}

// NewScheduler wires the scheduler. rec may be nil.
func NewScheduler(page Page, cache *MetadataCache, injector *ControlInjector, controls *ControlRegistry, filter *dom.SelfMutationFilter, rec *trace.Recorder) *Scheduler {
	return &Scheduler{page: page, cache: cache, injector: injector, controls: controls, filter: filter, rec: rec}
}

// OnMutation reacts to one observed mutation batch. Batches that originate
// solely from the agent's own writes never trigger a scan; that is the
// guard that keeps mutation->scan->mutation from looping forever.
func (s *Scheduler) OnMutation(ctx context.Context, m dom.Mutation) {
	if s.filter.OwnWrites(m) {
		return
	}
	s.Scan(ctx)
}

// Scan runs one classification+injection pass. A Scan entered while
// another is running coalesces into a single follow-up pass instead of
// stacking; scans are cheap when everything is already annotated.
func (s *Scheduler) Scan(ctx context.Context) {
	s.mu.Lock()
	if s.scanning {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.scanning = true
	s.mu.Unlock()

	for {
		if err := s.scanOnce(ctx); err != nil {
			// Never fatal: the next mutation retries.
			log.Printf("scan: %v", err)
		}

		s.mu.Lock()
		if !s.dirty {
			s.scanning = false
			s.mu.Unlock()
			return
		}
		s.dirty = false
		s.mu.Unlock()
	}
}

func (s *Scheduler) scanOnce(ctx context.Context) error {
	s.mu.Lock()
	s.token++
	token := s.token
	s.mu.Unlock()

	rawURL, err := s.page.URL(ctx)
	if err != nil {
		return err
	}
	kind := ResolvePageKind(rawURL)
	if kind == PageUnknown {
		return nil
	}

	var meta *AlbumMetadata
	if kind == PageAlbumDetail {
		id, ok := ResolveAlbumID(rawURL)
		if !ok {
			return nil
		}
		meta, err = s.cache.Get(ctx, id, false)
		if err != nil {
			log.Printf("metadata for %s: %v", id, err)
		}
		if meta == nil {
			// Context not yet available: skip injection entirely rather
			// than planting controls with incomplete data. The next
			// mutation-triggered scan retries.
			return nil
		}
	}

	root, err := s.page.Snapshot(ctx)
	if err != nil {
		return err
	}

	rows := root.Rows()

	// Rows that vanished since the last pass took their controls with
	// them; drop the orphaned bindings so the registry tracks the page.
	live := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		live[row.Ref()] = struct{}{}
	}
	if removed := s.controls.PruneMissing(live); removed > 0 {
		log.Printf("pruned %d stale control bindings", removed)
	}

	injected := 0
	for _, row := range rows {
		cand := Classify(kind, row)
		if cand == nil {
			continue
		}
		if kind == PageAlbumDetail {
			cand.Artist = meta.Artist
			cand.Album = meta.Title
			cand.AlbumForeignID = meta.ForeignAlbumID
			cand.LidarrAlbumID = meta.LidarrAlbumID
		}
		ok, err := s.injector.EnsureControl(ctx, row, *cand)
		if err != nil {
			log.Printf("inject control for %q: %v", cand.Title, err)
			continue
		}
		if ok {
			injected++
		}
	}

	if injected > 0 {
		s.rec.Log(trace.EventScan, map[string]any{
			"token": token, "kind": kind.String(), "injected": injected,
		})
	}
	return nil
}

// Token returns the monotonically increasing scan counter.
func (s *Scheduler) Token() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}
