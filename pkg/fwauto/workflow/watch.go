package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fwauto/fwauto/pkg/fwauto/intent"
	"github.com/fwauto/fwauto/pkg/util"
)

// ReloadDelay debounces bursts of file events into one reload.
var ReloadDelay = 500 * time.Millisecond

// Store holds the current catalog and swaps it on reload. Readers always
// see a complete, validated catalog.
type Store struct {
	mu      sync.RWMutex
	catalog *Catalog
	reloads int
}

// NewStore wraps an already loaded catalog.
func NewStore(c *Catalog) *Store {
	return &Store{catalog: c}
}

// Catalog returns the current catalog.
func (s *Store) Catalog() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Replace swaps in c.
func (s *Store) Replace(c *Catalog) {
	s.mu.Lock()
	s.catalog = c
	s.reloads++
	s.mu.Unlock()
}

// Reloads returns how many times the catalog was replaced.
func (s *Store) Reloads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reloads
}

// Lookup implements Source.
func (s *Store) Lookup(name string) (*Workflow, bool) {
	return s.Catalog().Lookup(name)
}

// RoutingTable implements intent.Catalog.
func (s *Store) RoutingTable() []intent.Workflow {
	return s.Catalog().RoutingTable()
}

// Watch reloads the catalog from dir whenever a YAML file there changes.
// A catalog that fails to load or validate is logged and the previous one
// kept. Watching stops when ctx is done.
func (s *Store) Watch(ctx context.Context, dir string) error {
	return Watch(ctx, dir, func(c *Catalog, err error) {
		if err != nil {
			util.WithField("dir", dir).Errorf("Catalog reload failed, keeping previous catalog: %v", err)
			return
		}
		s.Replace(c)
		util.WithField("dir", dir).Infof("Reloaded catalog with %d workflows", c.Len())
	})
}

// Watch calls onReload with a freshly loaded catalog, or the load error,
// after YAML files in dir change. It returns once the watch is set up.
func Watch(ctx context.Context, dir string, onReload func(*Catalog, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go processEvents(ctx, watcher, dir, ReloadDelay, onReload)

	util.WithField("dir", dir).Debug("Watching workflow catalog")
	return nil
}

func processEvents(ctx context.Context, watcher *fsnotify.Watcher, dir string, delay time.Duration, onReload func(*Catalog, error)) {
	defer watcher.Close()

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	stop := func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				stop()
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !isCatalogFile(event.Name) {
				continue
			}
			util.WithFields(map[string]interface{}{"file": event.Name, "op": event.Op.String()}).Debug("Catalog file changed")

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, func() {
				if ctx.Err() != nil {
					return
				}
				onReload(Load(dir))
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				stop()
				return
			}
			util.WithField("dir", dir).Errorf("Watcher error: %v", err)
		}
	}
}
