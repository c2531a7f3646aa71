package syncer

import (
	"context"
	"log"
	"time"

	"github.com/nebula-tools/nebulactl/internal/cloud"
	"github.com/nebula-tools/nebulactl/internal/mapping"
)

// Watcher periodically re-derives every stored mapping from the cloud
// directory. A lookup failure for one instance never touches its mapping or
// config block; the next tick retries.
type Watcher struct {
	syncer   *Syncer
	store    *mapping.Store
	dir      cloud.Directory
	interval time.Duration
	stopCh   chan struct{}
}

func NewWatcher(s *Syncer, store *mapping.Store, dir cloud.Directory, interval time.Duration) *Watcher {
	return &Watcher{
		syncer:   s,
		store:    store,
		dir:      dir,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *Watcher) Stop() {
	close(w.stopCh)
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.ResyncAll(ctx)
		}
	}
}

// ResyncAll runs one reconciliation pass over every stored mapping.
func (w *Watcher) ResyncAll(ctx context.Context) {
	for _, m := range w.store.All() {
		ip, err := w.dir.ExternalIP(ctx, m.InstanceName, m.Zone, m.Project)
		if err != nil {
			log.Printf("watcher: looking up %s: %v", m.InstanceName, err)
			continue
		}

		outcome, err := w.syncer.Sync(Request{
			InstanceName: m.InstanceName,
			Zone:         m.Zone,
			Project:      m.Project,
			ObservedIP:   ip,
		})
		if err != nil {
			log.Printf("watcher: syncing %s: %v", m.InstanceName, err)
			continue
		}
		if outcome == OutcomeCreated || outcome == OutcomeUpdatedIPChanged {
			log.Printf("watcher: %s %s (ip=%s)", m.InstanceName, outcome, ip)
		}
	}
}
