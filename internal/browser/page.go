package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"blissful-agent/internal/agent"
	"blissful-agent/internal/config"
	"blissful-agent/internal/dom"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// LibraryPage adapts one live browser tab to the agent.Page surface. All
// DOM access goes through evaluated scripts; the Go side never holds
// element handles, only the durable data-blissful-* references.
type LibraryPage struct {
	page *rod.Page
	cfg  config.BrowserConfig
}

func newLibraryPage(page *rod.Page, cfg config.BrowserConfig) *LibraryPage {
	return &LibraryPage{page: page, cfg: cfg}
}

func (p *LibraryPage) eval(ctx context.Context, js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// URL returns the tab's current location.
func (p *LibraryPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Snapshot serializes the candidate rows into a pruned tree. The in-page
// serializer assigns stable row references as a side effect, so the same
// physical row keeps its ref across snapshots.
func (p *LibraryPage) Snapshot(ctx context.Context) (*dom.Node, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           snapshotJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var root dom.Node
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &root, nil
}

// InjectControl plants the control described by spec into its row.
func (p *LibraryPage) InjectControl(ctx context.Context, spec agent.ControlSpec) error {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           injectControlJS,
		JSArgs:       []interface{}{spec.RowRef, spec.Ref, spec.Tag, spec.Label},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("inject control: %w", err)
	}
	switch verdict := res.Value.Str(); verdict {
	case "ok", "exists":
		return nil
	case "missing":
		return fmt.Errorf("row %s is gone", spec.RowRef)
	default:
		return fmt.Errorf("inject control: unexpected verdict %q", verdict)
	}
}

// SetControlState restyles a control to reflect its lifecycle state.
func (p *LibraryPage) SetControlState(ctx context.Context, ref string, state agent.ControlState) error {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           setControlStateJS,
		JSArgs:       []interface{}{ref, stateClass(state), stateLabel(state), state == agent.StatePending || state == agent.StateSuccess},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("set control state: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("control %s is gone", ref)
	}
	return nil
}

// RemoveControl deletes a control from the page.
func (p *LibraryPage) RemoveControl(ctx context.Context, ref string) error {
	if _, err := p.eval(ctx, removeControlJS, ref); err != nil {
		return fmt.Errorf("remove control: %w", err)
	}
	return nil
}

// ShowToast displays a transient in-page notification.
func (p *LibraryPage) ShowToast(ctx context.Context, level agent.NotifyLevel, message string) error {
	if _, err := p.eval(ctx, showToastJS, string(level), message); err != nil {
		return fmt.Errorf("show toast: %w", err)
	}
	return nil
}

func stateClass(state agent.ControlState) string {
	return "blissful-btn blissful-" + state.String()
}

func stateLabel(state agent.ControlState) string {
	switch state {
	case agent.StatePending:
		return "Downloading..."
	case agent.StateSuccess:
		return "Downloaded"
	case agent.StateFailure:
		return "Failed - retry"
	default:
		return "Download"
	}
}

// InstallHook evaluates the in-page hook. Safe to call repeatedly; the
// script guards itself with a window flag.
func (p *LibraryPage) InstallHook(ctx context.Context) error {
	_, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           installHookJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("install hook: %w", err)
	}
	return nil
}

// pageEvent mirrors the JSON shape of one buffered in-page event.
type pageEvent struct {
	Type string   `json:"type"`
	Ref  string   `json:"ref"`
	Tags []string `json:"tags"`
	TS   float64  `json:"ts"`
}

// EventStream installs the hook and starts draining the in-page buffer on
// the configured interval. The returned channel closes when ctx is done.
// Full page loads re-install the hook, since a reload wipes it along with
// everything else the agent wrote.
func (p *LibraryPage) EventStream(ctx context.Context) (<-chan agent.PageEvent, error) {
	if err := p.InstallHook(ctx); err != nil {
		return nil, err
	}

	out := make(chan agent.PageEvent, 64)

	waitNav := p.page.Context(ctx).EachEvent(func(ev *proto.PageFrameNavigated) {
		if err := p.InstallHook(ctx); err != nil {
			log.Printf("reinstall hook after navigation: %v", err)
			return
		}
		// A reload is a host change by definition; the untagged entry makes
		// the batch foreign so the scheduler rescans.
		select {
		case out <- agent.PageEvent{Mutation: &dom.Mutation{AddedTags: []string{""}, Observed: time.Now()}}:
		default:
		}
	})
	go waitNav()

	go func() {
		defer close(out)
		ticker := time.NewTicker(p.cfg.PollInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, ev := range p.drainEvents(ctx) {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func (p *LibraryPage) drainEvents(ctx context.Context) []agent.PageEvent {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           drainEventsJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil
	}
	var events []pageEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil
	}
	return convertEvents(events)
}

func convertEvents(events []pageEvent) []agent.PageEvent {
	out := make([]agent.PageEvent, 0, len(events))
	for _, ev := range events {
		switch ev.Type {
		case "mutation":
			out = append(out, agent.PageEvent{Mutation: &dom.Mutation{
				AddedTags: ev.Tags,
				Observed:  time.UnixMilli(int64(ev.TS)),
			}})
		case "activate":
			if ev.Ref != "" {
				out = append(out, agent.PageEvent{ActivateRef: ev.Ref})
			}
		}
	}
	return out
}
