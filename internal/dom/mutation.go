package dom

import (
	"sync"
	"time"
)

// Mutation describes one childList batch reported by the in-page observer
// hook: the generation tags of every element added in the batch. Elements
// the agent did not write carry an empty tag.
type Mutation struct {
	AddedTags []string  `json:"tags"`
	Observed  time.Time `json:"-"`
}

// SelfMutationFilter decides whether a mutation batch originated solely
// from the agent's own DOM writes. Every injection pass tags its nodes
// with a generation ID and registers it here; a batch whose additions all
// carry known tags is ignored by the scheduler, which is what keeps the
// mutation->scan->mutation loop from recursing forever.
type SelfMutationFilter struct {
	mu        sync.Mutex
	written   map[string]time.Time
	static    map[string]struct{}
	retention time.Duration
	now       func() time.Time
}

// NewSelfMutationFilter builds a filter that remembers written generation
// tags for the given retention window. Static tags (toast containers, the
// injected stylesheet) are treated as agent writes forever.
func NewSelfMutationFilter(retention time.Duration, staticTags ...string) *SelfMutationFilter {
	static := make(map[string]struct{}, len(staticTags))
	for _, t := range staticTags {
		static[t] = struct{}{}
	}
	return &SelfMutationFilter{
		written:   make(map[string]time.Time),
		static:    static,
		retention: retention,
		now:       time.Now,
	}
}

// NoteWrite records a generation tag the agent is about to write into the
// page. Must be called before the write lands, otherwise the observer can
// report the batch first and the scheduler treats it as foreign.
func (f *SelfMutationFilter) NoteWrite(tag string) {
	if tag == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[tag] = f.now().Add(f.retention)
	f.prune()
}

// OwnWrites reports whether every added node in the batch carries a tag
// the agent wrote recently. An empty batch is trivially "own": there is
// nothing foreign in it to rescan for.
func (f *SelfMutationFilter) OwnWrites(m Mutation) bool {
	if len(m.AddedTags) == 0 {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune()
	for _, tag := range m.AddedTags {
		if tag == "" {
			return false
		}
		if _, ok := f.static[tag]; ok {
			continue
		}
		if _, ok := f.written[tag]; !ok {
			return false
		}
	}
	return true
}

// prune drops expired tags. Caller holds f.mu.
func (f *SelfMutationFilter) prune() {
	now := f.now()
	for tag, deadline := range f.written {
		if now.After(deadline) {
			delete(f.written, tag)
		}
	}
}
