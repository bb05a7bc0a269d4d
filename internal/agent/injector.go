package agent

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"blissful-agent/internal/dom"
)

// controlBinding pairs an injected control with its candidate and state.
type controlBinding struct {
	spec  ControlSpec
	cand  RowCandidate
	state ControlState
}

// ControlRegistry tracks every injected control and enforces the state
// machine: Idle -> Pending -> Success, or Idle -> Pending -> Failure ->
// Idle. No transition skips Pending.
type ControlRegistry struct {
	mu       sync.Mutex
	controls map[string]*controlBinding
}

// NewControlRegistry builds an empty registry.
func NewControlRegistry() *ControlRegistry {
	return &ControlRegistry{controls: make(map[string]*controlBinding)}
}

func (r *ControlRegistry) add(spec ControlSpec, cand RowCandidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// A host re-render can wipe an old control; the new one replaces any
	// stale binding for the same row.
	for ref, b := range r.controls {
		if b.spec.RowRef == spec.RowRef {
			delete(r.controls, ref)
		}
	}
	r.controls[spec.Ref] = &controlBinding{spec: spec, cand: cand, state: StateIdle}
}

// Candidate returns the row candidate bound to a control.
func (r *ControlRegistry) Candidate(ref string) (RowCandidate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.controls[ref]
	if !ok {
		return RowCandidate{}, false
	}
	return b.cand, true
}

// State returns the current state of a control.
func (r *ControlRegistry) State(ref string) (ControlState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.controls[ref]
	if !ok {
		return StateIdle, false
	}
	return b.state, true
}

// Activate transitions Idle -> Pending. Returns false when the control is
// unknown or already busy; the Pending state is the sole guard against
// double submission from the same control.
func (r *ControlRegistry) Activate(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.controls[ref]
	if !ok || b.state != StateIdle {
		return false
	}
	b.state = StatePending
	return true
}

// Succeed transitions Pending -> Success.
func (r *ControlRegistry) Succeed(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.controls[ref]
	if !ok || b.state != StatePending {
		return false
	}
	b.state = StateSuccess
	return true
}

// Fail transitions Pending -> Failure -> Idle: the control stays in the
// page, re-clickable for a retry. The transient Failure styling is the
// page's concern; the registry rests at Idle.
func (r *ControlRegistry) Fail(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.controls[ref]
	if !ok || b.state != StatePending {
		return false
	}
	b.state = StateIdle
	return true
}

// Remove drops a control from the registry (after its Success grace delay
// or when its row disappears).
func (r *ControlRegistry) Remove(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.controls, ref)
}

// PruneMissing drops every binding whose row is absent from the snapshot.
// Host re-renders and navigations abandon old rows under fresh refs, so
// without this sweep a long-running agent accumulates orphaned bindings
// forever. Returns the number of bindings removed.
func (r *ControlRegistry) PruneMissing(liveRows map[string]struct{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for ref, b := range r.controls {
		if _, ok := liveRows[b.spec.RowRef]; !ok {
			delete(r.controls, ref)
			removed++
		}
	}
	return removed
}

// Count returns the number of live controls.
func (r *ControlRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controls)
}

// ControlInjector idempotently attaches download controls to classified
// rows. Every injected node carries a generation tag registered with the
// self-mutation filter before the write lands.
type ControlInjector struct {
	page     Page
	filter   *dom.SelfMutationFilter
	controls *ControlRegistry
}

// NewControlInjector wires an injector to the page, filter, and registry.
func NewControlInjector(page Page, filter *dom.SelfMutationFilter, controls *ControlRegistry) *ControlInjector {
	return &ControlInjector{page: page, filter: filter, controls: controls}
}

// EnsureControl injects a control for the candidate unless the row already
// carries one. Returns true when a new control was injected.
func (i *ControlInjector) EnsureControl(ctx context.Context, row *dom.Node, cand RowCandidate) (bool, error) {
	already := row.Find(func(n *dom.Node) bool { return n.Attr(dom.ControlAttr) != "" })
	if already != nil {
		return false, nil
	}

	spec := ControlSpec{
		Ref:    uuid.NewString(),
		RowRef: cand.RowRef,
		Tag:    uuid.NewString(),
		Label:  "Download",
	}

	// Register the tag first: the observer can report the write before
	// InjectControl returns.
	i.filter.NoteWrite(spec.Tag)
	if err := i.page.InjectControl(ctx, spec); err != nil {
		return false, err
	}
	i.controls.add(spec, cand)
	return true, nil
}
