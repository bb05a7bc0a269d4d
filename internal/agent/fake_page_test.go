package agent

import (
	"context"
	"sync"

	"blissful-agent/internal/dom"
)

// fakePage implements Page against an in-memory tree, mirroring the real
// page's observable behavior: injected controls land in the snapshot so a
// later scan sees them.
type fakePage struct {
	mu       sync.Mutex
	url      string
	root     *dom.Node
	injected []ControlSpec
	states   map[string][]ControlState
	removed  []string
	toasts   []fakeToast
}

type fakeToast struct {
	level   NotifyLevel
	message string
}

func newFakePage(url string, root *dom.Node) *fakePage {
	return &fakePage{url: url, root: root, states: make(map[string][]ControlState)}
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Snapshot(context.Context) (*dom.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.root, nil
}

func (p *fakePage) InjectControl(_ context.Context, spec ControlSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.injected = append(p.injected, spec)

	row := p.root.Find(func(n *dom.Node) bool { return n.Ref() == spec.RowRef })
	if row != nil {
		row.Children = append(row.Children, &dom.Node{
			Tag: "button",
			Attrs: map[string]string{
				dom.ControlAttr:    spec.Ref,
				dom.GenerationAttr: spec.Tag,
			},
			Text: spec.Label,
		})
	}
	return nil
}

func (p *fakePage) SetControlState(_ context.Context, ref string, state ControlState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[ref] = append(p.states[ref], state)
	return nil
}

func (p *fakePage) RemoveControl(_ context.Context, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, ref)
	return nil
}

func (p *fakePage) ShowToast(_ context.Context, level NotifyLevel, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toasts = append(p.toasts, fakeToast{level: level, message: message})
	return nil
}

func (p *fakePage) injectedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.injected)
}

func (p *fakePage) stateHistory(ref string) []ControlState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ControlState, len(p.states[ref]))
	copy(out, p.states[ref])
	return out
}

func (p *fakePage) removedRefs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.removed))
	copy(out, p.removed)
	return out
}

func (p *fakePage) toastLog() []fakeToast {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]fakeToast, len(p.toasts))
	copy(out, p.toasts)
	return out
}

// listRow builds a list-page row linking to an album, with an optional
// status label.
func listRow(ref, albumID, title, artist, status string) *dom.Node {
	row := &dom.Node{
		Tag:   "tr",
		Attrs: map[string]string{dom.RowRefAttr: ref},
		Children: []*dom.Node{
			{Tag: "a", Attrs: map[string]string{"href": "/album/" + albumID}, Text: title},
		},
	}
	if artist != "" {
		row.Children = append(row.Children, &dom.Node{
			Tag: "a", Attrs: map[string]string{"href": "/artist/x"}, Text: artist,
		})
	}
	if status != "" {
		row.Children = append(row.Children, &dom.Node{Tag: "div", Text: status})
	}
	return row
}

// detailRow builds an album-detail track row.
func detailRow(ref, title, number string, missing bool) *dom.Node {
	status := &dom.Node{Tag: "td", Classes: []string{"trackStatus-1aBc"}}
	if missing {
		status.Children = []*dom.Node{
			{Tag: "svg", Attrs: map[string]string{"data-icon": "exclamation-triangle"}},
		}
	}
	row := &dom.Node{
		Tag:   "tr",
		Attrs: map[string]string{dom.RowRefAttr: ref},
		Children: []*dom.Node{
			{Tag: "td", Classes: []string{"trackNumber-9zYx"}, Text: number},
			{Tag: "td", Classes: []string{"trackTitle-4dEf"}, Text: title},
			status,
		},
	}
	return row
}

func pageRoot(rows ...*dom.Node) *dom.Node {
	return &dom.Node{Tag: "body", Children: rows}
}
