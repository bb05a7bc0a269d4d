package agent

import "sync"

// Topic names an internal event stream.
type Topic string

const (
	// TopicScanRequested asks the scheduler to run a pass (published after
	// a post-download settle, or by the control surface).
	TopicScanRequested Topic = "scan_requested"
	// TopicDownloadCompleted announces a finished single-item download.
	TopicDownloadCompleted Topic = "download_completed"
)

// Event is one bus message.
type Event struct {
	Topic   Topic
	Payload any
}

// Handler consumes bus events. Publish calls handlers synchronously in
// subscription order; a handler that needs to block must spin off its own
// goroutine.
type Handler func(Event)

// Bus is a small in-process event bus replacing ad hoc closure wiring, so
// ordering and re-entrancy are testable without real DOM timers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
}

// NewBus builds an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Topic][]Handler)}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish delivers the event to every subscriber of its topic.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]Handler, len(b.handlers[ev.Topic]))
	copy(subs, b.handlers[ev.Topic])
	b.mu.RUnlock()

	for _, h := range subs {
		h(ev)
	}
}
