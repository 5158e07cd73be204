package registry

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mintforge/synth-api/pkg/response"
)

// Cache is the per-module dependency cache. Each stateful module declares the
// registry names it depends on, rebuilds its local snapshot explicitly, and
// can report whether the snapshot has drifted from the live registry. It is a
// memoization layer with explicit invalidation, not auto-healing: a stale
// cache stays stale until Rebuild is called.
type Cache struct {
	module   string
	required []string

	mu      sync.RWMutex
	entries map[string]string
}

// NewCache creates a dependency cache for a module with its static set of
// required registry names
func NewCache(module string, required []string) *Cache {
	return &Cache{
		module:   module,
		required: required,
		entries:  make(map[string]string),
	}
}

// Module returns the owning module's name
func (c *Cache) Module() string {
	return c.module
}

// RequiredNames returns the static set of names this module depends on
func (c *Cache) RequiredNames() []string {
	names := make([]string, len(c.required))
	copy(names, c.required)
	return names
}

// Rebuild re-resolves every required name through the fail-fast lookup and
// replaces the local snapshot atomically
func (c *Cache) Rebuild(svc *Service) error {
	resolved := make(map[string]string, len(c.required))
	for _, name := range c.required {
		address, err := svc.RequireAndGetAddress(name, fmt.Sprintf("required by %s", c.module))
		if err != nil {
			return err
		}
		resolved[name] = address
	}

	c.mu.Lock()
	c.entries = resolved
	c.mu.Unlock()

	log.Info().
		Str("module", c.module).
		Int("entries", len(resolved)).
		Msg("rebuilt dependency cache")
	return nil
}

// IsCurrent compares the local snapshot against the live registry for every
// required name. It reports false if any entry is missing locally, missing
// from the registry, or stale. Read-only; callers must Rebuild explicitly.
func (c *Cache) IsCurrent(svc *Service) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, name := range c.required {
		live, err := svc.GetAddress(name)
		if err != nil {
			return false, err
		}
		cached, ok := c.entries[name]
		if !ok || live == "" || cached != live {
			return false, nil
		}
	}
	return true, nil
}

// Require returns the cached address for a name, failing with a missing
// dependency error naming the key when the entry is unset
func (c *Cache) Require(name string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	address, ok := c.entries[name]
	if !ok || address == "" {
		return "", response.Kind(response.ErrDependency, fmt.Sprintf("%s: missing dependency: %s", c.module, name))
	}
	return address, nil
}
