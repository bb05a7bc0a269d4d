package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blissful-agent/internal/blissful"
)

// fakeService implements Service with canned download verdicts.
type fakeService struct {
	*fakeFetcher
	mu          sync.Mutex
	trackResult *blissful.TrackResult
	trackErr    error
	albumResult *blissful.AlbumResult
	albumErr    error
	trackReqs   []blissful.TrackRequest
}

func newFakeService() *fakeService {
	return &fakeService{fakeFetcher: newFakeFetcher()}
}

func (s *fakeService) DownloadTrack(_ context.Context, req blissful.TrackRequest) (*blissful.TrackResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackReqs = append(s.trackReqs, req)
	if s.trackErr != nil {
		return nil, s.trackErr
	}
	if s.trackResult != nil {
		return s.trackResult, nil
	}
	return &blissful.TrackResult{Success: true}, nil
}

func (s *fakeService) DownloadAlbum(context.Context, blissful.AlbumRequest) (*blissful.AlbumResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.albumErr != nil {
		return nil, s.albumErr
	}
	if s.albumResult != nil {
		return s.albumResult, nil
	}
	return &blissful.AlbumResult{Success: true}, nil
}

type orchestratorHarness struct {
	orch     *Orchestrator
	service  *fakeService
	page     *fakePage
	controls *ControlRegistry
	cache    *MetadataCache
	bus      *Bus
}

func newOrchestratorHarness(t *testing.T) *orchestratorHarness {
	t.Helper()
	service := newFakeService()
	page := newFakePage("http://localhost:8686/album/abc", pageRoot())
	controls := NewControlRegistry()
	bus := NewBus()
	cache := NewMetadataCache(service)
	notify := NewNotifier(page, true)
	orch := NewOrchestrator(service, cache, controls, page, notify, bus, nil, 10*time.Millisecond, 10*time.Millisecond)
	return &orchestratorHarness{orch: orch, service: service, page: page, controls: controls, cache: cache, bus: bus}
}

func (h *orchestratorHarness) addControl(ref string, cand RowCandidate) {
	h.controls.add(ControlSpec{Ref: ref, RowRef: cand.RowRef}, cand)
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDownloadSuccessTransitions(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.addControl("c1", RowCandidate{
		Kind: PageAlbumDetail, RowRef: "r1",
		Artist: "Metallica", Title: "Enter Sandman", Album: "Metallica", TrackNumber: 1,
	})

	out := h.orch.HandleActivation(context.Background(), "c1")
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}

	history := h.page.stateHistory("c1")
	if len(history) != 2 || history[0] != StatePending || history[1] != StateSuccess {
		t.Errorf("expected Pending then Success, got %v", history)
	}

	toasts := h.page.toastLog()
	if len(toasts) != 1 || toasts[0].level != NotifySuccess {
		t.Fatalf("expected one success toast, got %v", toasts)
	}

	// The control self-removes after the grace delay.
	waitFor(t, func() bool { return len(h.page.removedRefs()) == 1 }, "control removal")
	if h.controls.Count() != 0 {
		t.Errorf("expected control dropped from registry, got %d", h.controls.Count())
	}
}

func TestDownloadSuccessSchedulesRescan(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.service.set("abc", "Metallica", "Metallica")
	h.addControl("c1", RowCandidate{
		Kind: PageAlbumDetail, RowRef: "r1",
		Artist: "Metallica", Title: "Enter Sandman", Album: "Metallica", AlbumForeignID: "abc",
	})

	rescans := make(chan struct{}, 1)
	h.bus.Subscribe(TopicScanRequested, func(Event) {
		select {
		case rescans <- struct{}{}:
		default:
		}
	})

	if out := h.orch.HandleActivation(context.Background(), "c1"); !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}

	select {
	case <-rescans:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a rescan request after the settle delay")
	}
	// The forced refresh fetched fresh metadata for the album.
	waitFor(t, func() bool { return h.service.calls.Load() >= 1 }, "metadata refresh")
}

func TestPostDownloadRefreshSkippedAfterNavigation(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.service.set("abc", "Metallica", "Metallica")
	h.addControl("c1", RowCandidate{
		Kind: PageAlbumDetail, RowRef: "r1",
		Artist: "Metallica", Title: "Enter Sandman", Album: "Metallica", AlbumForeignID: "abc",
	})

	// The user moved to another album before the settle delay elapsed.
	h.page.mu.Lock()
	h.page.url = "http://localhost:8686/album/other"
	h.page.mu.Unlock()

	rescans := make(chan struct{}, 1)
	h.bus.Subscribe(TopicScanRequested, func(Event) {
		select {
		case rescans <- struct{}{}:
		default:
		}
	})

	if out := h.orch.HandleActivation(context.Background(), "c1"); !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}

	// The rescan still fires, but the refresh must not retarget the cache
	// back to the old album.
	select {
	case <-rescans:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a rescan request after the settle delay")
	}
	if got := h.service.calls.Load(); got != 0 {
		t.Errorf("refresh must be skipped after navigation, got %d fetches", got)
	}
	if cached, ok := h.cache.Cached(); ok {
		t.Errorf("cache must stay empty, got %+v", cached)
	}
}

func TestDownloadFailurePayloadResetsControl(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.service.trackResult = &blissful.TrackResult{Success: false, Error: "not found"}
	h.addControl("c1", RowCandidate{RowRef: "r1", Artist: "Metallica", Title: "Enter Sandman", Album: "Metallica"})

	out := h.orch.HandleActivation(context.Background(), "c1")
	if out.Success || out.Error != "not found" {
		t.Fatalf("expected failure 'not found', got %+v", out)
	}

	history := h.page.stateHistory("c1")
	if len(history) != 2 || history[0] != StatePending || history[1] != StateFailure {
		t.Errorf("expected Pending then Failure, got %v", history)
	}
	toasts := h.page.toastLog()
	if len(toasts) != 1 || toasts[0].level != NotifyError {
		t.Fatalf("expected one error toast, got %v", toasts)
	}

	// Re-clickable: a second activation goes through.
	h.service.mu.Lock()
	h.service.trackResult = &blissful.TrackResult{Success: true}
	h.service.mu.Unlock()
	if out := h.orch.HandleActivation(context.Background(), "c1"); !out.Success {
		t.Errorf("control must be retryable after failure, got %+v", out)
	}
}

func TestDownloadNetworkErrorResetsControl(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.service.trackErr = errors.New("connection refused")
	h.addControl("c1", RowCandidate{RowRef: "r1", Artist: "a", Title: "t"})

	out := h.orch.HandleActivation(context.Background(), "c1")
	if out.Success {
		t.Fatal("expected failure on network error")
	}
	if st, _ := h.controls.State("c1"); st != StateIdle {
		t.Errorf("control must rest at Idle after network error, got %v", st)
	}
}

func TestPendingGuardsDoubleSubmission(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.addControl("c1", RowCandidate{RowRef: "r1", Artist: "a", Title: "t"})
	h.controls.Activate("c1")

	out := h.orch.HandleActivation(context.Background(), "c1")
	if out.Error != "control is busy" {
		t.Errorf("expected busy verdict for pending control, got %+v", out)
	}
	h.service.mu.Lock()
	calls := len(h.service.trackReqs)
	h.service.mu.Unlock()
	if calls != 0 {
		t.Errorf("pending control must not reach the service, got %d calls", calls)
	}
}

func TestActivationRequestFields(t *testing.T) {
	h := newOrchestratorHarness(t)
	lidarrID := 42
	h.addControl("c1", RowCandidate{
		RowRef: "r1", Artist: "Metallica", Title: "Enter Sandman", Album: "Metallica",
		TrackNumber: 3, LidarrAlbumID: &lidarrID,
	})

	h.orch.HandleActivation(context.Background(), "c1")

	h.service.mu.Lock()
	defer h.service.mu.Unlock()
	if len(h.service.trackReqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(h.service.trackReqs))
	}
	req := h.service.trackReqs[0]
	if req.AlbumID == nil || *req.AlbumID != 42 {
		t.Error("expected album_id 42")
	}
	if req.TrackNumber == nil || *req.TrackNumber != 3 {
		t.Error("expected track_number 3")
	}
}

func TestBatchPartialFailureWarns(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.service.albumResult = &blissful.AlbumResult{Success: true, TotalTracks: 5, Successful: 3, Failed: 2}

	out := h.orch.DownloadBatch(context.Background(), "Metallica", "Metallica",
		[]string{"t1", "t2", "t3", "t4", "t5"})

	if !out.Success || out.Total != 5 || out.Successful != 3 || out.Failed != 2 {
		t.Errorf("batch counts must pass through verbatim, got %+v", out)
	}
	toasts := h.page.toastLog()
	if len(toasts) != 1 || toasts[0].level != NotifyWarning {
		t.Fatalf("expected a single warning toast, got %v", toasts)
	}
}

func TestBatchAllSuccessNotifiesSuccess(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.service.albumResult = &blissful.AlbumResult{Success: true, TotalTracks: 2, Successful: 2}

	out := h.orch.DownloadBatch(context.Background(), "a", "b", []string{"t1", "t2"})
	if !out.Success || out.Failed != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	toasts := h.page.toastLog()
	if len(toasts) != 1 || toasts[0].level != NotifySuccess {
		t.Errorf("expected a single success toast, got %v", toasts)
	}
}

func TestBatchServiceError(t *testing.T) {
	h := newOrchestratorHarness(t)
	h.service.albumErr = errors.New("connection refused")

	out := h.orch.DownloadBatch(context.Background(), "a", "b", []string{"t1"})
	if out.Success || out.Error == "" {
		t.Fatalf("expected failure outcome, got %+v", out)
	}
	toasts := h.page.toastLog()
	if len(toasts) != 1 || toasts[0].level != NotifyError {
		t.Errorf("expected a single error toast, got %v", toasts)
	}
}

func TestUnknownControl(t *testing.T) {
	h := newOrchestratorHarness(t)
	out := h.orch.HandleActivation(context.Background(), "ghost")
	if out.Error != "unknown control" {
		t.Errorf("expected unknown-control verdict, got %+v", out)
	}
}
