package contentmodel

import (
	"context"
	"log/slog"
)

// ChangeListener clears registry lookup caches when the type definitions of
// a tree change. Notifications arriving while an invalidation is pending are
// coalesced into it.
type ChangeListener struct {
	registry *Registry
	logger   *slog.Logger
	requests chan string
}

// NewChangeListener creates a listener invalidating the lookup caches of registry
func NewChangeListener(registry *Registry, logger *slog.Logger) *ChangeListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeListener{
		registry: registry,
		logger:   logger,
		requests: make(chan string, 1),
	}
}

// Notify reports a change at path. It never blocks.
func (l *ChangeListener) Notify(path string) {
	select {
	case l.requests <- path:
	default:
	}
}

// Run processes notifications until ctx is done
func (l *ChangeListener) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-l.requests:
			l.logger.Debug("invalidating model lookup caches", "path", path)
			l.registry.ClearLookupCaches()
		}
	}
}
