package agent

import (
	"context"
	"log"
)

// Notifier surfaces outcomes to the user. Every asynchronous path in the
// agent ends in a notification plus a control-state transition; nothing is
// thrown at the host page.
type Notifier interface {
	Notify(ctx context.Context, level NotifyLevel, message string)
}

// pageNotifier renders in-page toasts, falling back to the log when the
// page write fails.
type pageNotifier struct {
	page Page
}

func (n *pageNotifier) Notify(ctx context.Context, level NotifyLevel, message string) {
	if err := n.page.ShowToast(ctx, level, message); err != nil {
		log.Printf("toast failed (%s): %v", level, err)
	}
}

// logNotifier is used when toasts are disabled by config or the service's
// persisted settings.
type logNotifier struct{}

func (logNotifier) Notify(_ context.Context, level NotifyLevel, message string) {
	log.Printf("[notify:%s] %s", level, message)
}

// NewNotifier picks the toast or log implementation.
func NewNotifier(page Page, toasts bool) Notifier {
	if toasts {
		return &pageNotifier{page: page}
	}
	return logNotifier{}
}
