package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Registry scans the plugin directory and maintains an in-memory index of
// valid plugins keyed by manifest id.
type Registry struct {
	pluginDir string
	plugins   map[string]*Descriptor
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewRegistry creates a new plugin registry
func NewRegistry(pluginDir string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Descriptor),
		logger:    logger.With("component", "plugin_registry"),
	}
}

// Scan reloads every plugin directory. Invalid plugins are logged and
// skipped; the index is replaced only when the directory itself is readable.
func (r *Registry) Scan() error {
	entries, err := os.ReadDir(r.pluginDir)
	if err != nil {
		return fmt.Errorf("failed to read plugin directory: %w", err)
	}

	found := make(map[string]*Descriptor)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(r.pluginDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, ManifestFile)); os.IsNotExist(err) {
			continue
		}

		d, err := LoadDescriptor(dir)
		if err != nil {
			r.logger.Warn("Skipping plugin", "dir", entry.Name(), "error", err)
			continue
		}
		if prev, dup := found[d.ID()]; dup {
			r.logger.Warn("Duplicate plugin id", "id", d.ID(), "kept", prev.Dir, "skipped", d.Dir)
			continue
		}
		found[d.ID()] = d

		r.logger.Info("Loaded plugin",
			"id", d.Manifest.ID,
			"name", d.Manifest.Name,
			"version", d.Manifest.Version,
		)
	}

	r.mu.Lock()
	r.plugins = found
	r.mu.Unlock()

	return nil
}

// Get retrieves a plugin by its ID
func (r *Registry) Get(id string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.plugins[id]
	return d, ok
}

// List returns all registered plugins ordered by id
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Descriptor, 0, len(r.plugins))
	for _, d := range r.plugins {
		result = append(result, d)
	}
	slices.SortFunc(result, func(a, b *Descriptor) int {
		return strings.Compare(a.ID(), b.ID())
	})
	return result
}

// Watch rescans whenever the plugin directory or one of its plugin
// directories changes. Bursts of events are coalesced. onChange, when set,
// runs after each successful rescan. Watch blocks until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.pluginDir); err != nil {
		return fmt.Errorf("watch %s: %w", r.pluginDir, err)
	}
	for _, d := range r.List() {
		if err := watcher.Add(d.Dir); err != nil {
			r.logger.Warn("Failed to watch plugin directory", "dir", d.Dir, "error", err)
		}
	}

	timer := time.NewTimer(0)
	<-timer.C
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					watcher.Add(event.Name)
				}
			}
			pending = true
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Plugin watcher error", "error", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			if err := r.Scan(); err != nil {
				r.logger.Error("Plugin rescan failed", "error", err)
				continue
			}
			r.logger.Info("Plugins rescanned", "count", len(r.List()))
			if onChange != nil {
				onChange()
			}
		}
	}
}
