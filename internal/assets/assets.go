// Package assets handles model definition loading and caching.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/logger"
	"github.com/Faultbox/midgard-anim/pkg/formats"
)

// ErrNotFound is returned when no model directory holds the requested model.
var ErrNotFound = errors.New("model not found")

// modelExts are the file extensions of model definitions, in lookup order.
var modelExts = []string{".yaml", ".yml"}

// Manager loads model definitions from a stack of directories.
type Manager struct {
	dirs  []string
	cache *Cache
	log   *zap.Logger
	mu    sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
		log:   logger.Named("assets"),
	}
}

// AddDir adds a model directory to the manager.
// Directories are searched in reverse order (last added = highest priority).
func (m *Manager) AddDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("opening model dir %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("opening model dir %s: not a directory", path)
	}

	m.mu.Lock()
	m.dirs = append(m.dirs, path)
	m.mu.Unlock()

	m.log.Debug("model dir added", zap.String("path", path))
	return nil
}

// Dirs returns the model directories in priority order, lowest first.
func (m *Manager) Dirs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.dirs)
}

// Load returns the parsed model called name.
func (m *Manager) Load(name string) (*formats.AnimatedModel, error) {
	// Check cache first
	if model, ok := m.cache.Get(name); ok {
		return model, nil
	}

	path, err := m.Resolve(name)
	if err != nil {
		return nil, err
	}
	model, err := formats.ParseModelFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if model.Name == "" {
		model.Name = name
	}

	m.cache.Set(name, model)
	m.log.Debug("model loaded",
		zap.String("name", name),
		zap.String("path", path),
		zap.Int("bones", len(model.Bones)),
		zap.Int("sequences", len(model.Sequences)))
	return model, nil
}

// Resolve returns the file that defines name.
func (m *Manager) Resolve(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Search directories in reverse order
	for i := len(m.dirs) - 1; i >= 0; i-- {
		for _, ext := range modelExts {
			path := filepath.Join(m.dirs[i], name+ext)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns the names of every model available, sorted.
func (m *Manager) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, dir := range m.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !IsModelFile(e.Name()) {
				continue
			}
			seen[ModelName(e.Name())] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Invalidate drops name from the cache so the next Load re-reads it.
func (m *Manager) Invalidate(name string) {
	m.cache.Delete(name)
}

// CacheStats returns cache hit and miss counts.
func (m *Manager) CacheStats() (hits, misses int) {
	return m.cache.Stats()
}

// Close forgets all directories and cached models.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dirs = nil
	m.cache.Clear()
}

// IsModelFile reports whether path has a model definition extension.
func IsModelFile(path string) bool {
	return slices.Contains(modelExts, strings.ToLower(filepath.Ext(path)))
}

// ModelName returns the model name a file defines.
func ModelName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Cache is a simple in-memory cache for parsed models.
type Cache struct {
	data map[string]*formats.AnimatedModel
	mu   sync.RWMutex

	// Stats
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]*formats.AnimatedModel),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) (*formats.AnimatedModel, bool) {
	c.mu.RLock()
	model, ok := c.data[key]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return model, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, model *formats.AnimatedModel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = model
}

// Delete removes an item from cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*formats.AnimatedModel)
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	return int(c.hits.Load()), int(c.misses.Load())
}
