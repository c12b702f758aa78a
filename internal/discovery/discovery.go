// Package discovery keeps a cached view of the communication endpoints
// attached to the machine, refreshed on a cron cadence and on demand.
package discovery

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/torvik/sketchbridge/internal/remote"
)

// Lister fetches the currently attached endpoints. remote.PortsClient
// satisfies it.
type Lister interface {
	List(ctx context.Context) ([]remote.Port, error)
}

// Watcher caches the endpoint list so snapshot reads never block on the
// discovery service. A failed refresh keeps the previous list.
type Watcher struct {
	lister Lister
	expr   string

	mu          sync.Mutex
	ports       []remote.Port
	refreshedAt time.Time
}

// NewWatcher creates a Watcher refreshing on the 5-field cron expression
// expr.
func NewWatcher(lister Lister, expr string) *Watcher {
	return &Watcher{lister: lister, expr: expr}
}

// Refresh fetches the endpoint list now and replaces the cache. On failure
// the cache is left untouched.
func (w *Watcher) Refresh(ctx context.Context) ([]remote.Port, error) {
	ports, err := w.lister.List(ctx)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.ports = ports
	w.refreshedAt = time.Now()
	w.mu.Unlock()
	return ports, nil
}

// Ports returns a copy of the cached endpoint list.
func (w *Watcher) Ports() []remote.Port {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]remote.Port, len(w.ports))
	copy(out, w.ports)
	return out
}

// RefreshedAt reports when the cache was last replaced.
func (w *Watcher) RefreshedAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refreshedAt
}

// Run refreshes once immediately, then on the cron cadence until ctx is
// cancelled. Returns immediately when the expression is empty or invalid.
func (w *Watcher) Run(ctx context.Context) {
	if _, err := w.Refresh(ctx); err != nil {
		log.Printf("discovery: initial refresh: %v", err)
	}

	d := nextRefresh(w.expr)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := w.Refresh(ctx); err != nil {
				log.Printf("discovery: refresh: %v", err)
			}
			if d := nextRefresh(w.expr); d > 0 {
				timer.Reset(d)
			} else {
				return
			}
		}
	}
}
