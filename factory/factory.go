// Package factory is the metadata-driven adapter registry and
// construction strategy dispatcher (spec.md §4.9). Directly grounded on
// auth.Registry/auth/factory.go's named-factory pattern (RWMutex-guarded
// map, a factory function keyed by a config-declared name); the "direct
// vs module" creation split mirrors that registry's own factory lookup,
// generalized here into two named strategies instead of one.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/flightcrawl/core/adapter"
	"github.com/flightcrawl/core/breaker"
	"github.com/flightcrawl/core/errhandler"
	"github.com/flightcrawl/core/flightmodel"
	"github.com/flightcrawl/core/ratelimit"
)

const (
	configCacheTTL     = 5 * time.Minute
	configCacheSize    = 256
	instanceCacheSize  = 256
	suggestionCount    = 3
	suggestionMaxDist  = 2
)

// Adapter is the construction result: anything exposing the single crawl
// operation spec.md §4.5 requires of every site adapter.
type Adapter interface {
	Crawl(ctx context.Context, params flightmodel.SearchParams) ([]flightmodel.FlightRecord, error)
}

// Deps bundles the shared collaborators every constructed adapter needs.
type Deps struct {
	RateLimiter  *ratelimit.Limiter
	Breakers     *breaker.Manager
	ErrorHandler *errhandler.Handler
	NewSession   func(ctx context.Context) (adapter.Session, error)
}

// ModuleConstructor builds an adapter with custom logic beyond the
// generic template, used by the "module" creation strategy (spec.md
// §4.9). No dynamic `.so` loading: the constructor must be registered
// ahead of time via RegisterConstructor.
type ModuleConstructor func(meta flightmodel.AdapterMetadata, deps Deps) (Adapter, error)

// Registry is the thread-safe adapter-name → metadata mapping plus the
// constructors needed to build instances.
type Registry struct {
	mu           sync.RWMutex
	metadata     map[string]flightmodel.AdapterMetadata
	constructors map[string]ModuleConstructor

	configCache   *lru.LRU[string, flightmodel.AdapterMetadata]
	instanceCache *lru.LRU[string, Adapter]
}

// NewRegistry creates an empty Registry with a 5-minute config cache and a
// bounded instance cache (golang-lru/v2's expirable LRU replaces a plain
// unbounded map for both).
func NewRegistry() *Registry {
	return &Registry{
		metadata:      make(map[string]flightmodel.AdapterMetadata),
		constructors:  make(map[string]ModuleConstructor),
		configCache:   lru.NewLRU[string, flightmodel.AdapterMetadata](configCacheSize, nil, configCacheTTL),
		instanceCache: lru.NewLRU[string, Adapter](instanceCacheSize, nil, 0),
	}
}

// RegisterMetadata adds (or replaces) one adapter's registry entry, keyed
// by its normalized name.
func (r *Registry) RegisterMetadata(meta flightmodel.AdapterMetadata) error {
	if meta.Name == "" {
		return fmt.Errorf("factory: adapter metadata requires a name")
	}
	key := flightmodel.NormalizedName(meta.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[key] = meta
	r.configCache.Remove(key)
	r.instanceCache.Remove(key)
	return nil
}

// RegisterConstructor registers a custom adapter constructor under
// moduleName, resolved by the "module" creation strategy.
func (r *Registry) RegisterConstructor(moduleName string, ctor ModuleConstructor) error {
	if moduleName == "" || ctor == nil {
		return fmt.Errorf("factory: invalid constructor registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[moduleName]; exists {
		return fmt.Errorf("factory: constructor %q already registered", moduleName)
	}
	r.constructors[moduleName] = ctor
	return nil
}

func (r *Registry) lookupMetadata(name string) (flightmodel.AdapterMetadata, bool) {
	key := flightmodel.NormalizedName(name)
	if meta, ok := r.configCache.Get(key); ok {
		return meta, true
	}
	r.mu.RLock()
	meta, ok := r.metadata[key]
	r.mu.RUnlock()
	if ok {
		r.configCache.Add(key, meta)
	}
	return meta, ok
}

// Create builds (or returns a cached) adapter instance for name. Instances
// are cached for the lifetime of the process unless metadata is
// re-registered, which evicts the cache entry.
func (r *Registry) Create(name string, deps Deps) (Adapter, error) {
	key := flightmodel.NormalizedName(name)

	if inst, ok := r.instanceCache.Get(key); ok {
		return inst, nil
	}

	meta, ok := r.lookupMetadata(name)
	if !ok {
		return nil, r.notFoundError(name)
	}

	var inst Adapter
	var err error
	switch meta.Creation {
	case flightmodel.CreationModule:
		inst, err = r.createModule(meta, deps)
	default:
		inst, err = r.createDirect(meta, deps)
	}
	if err != nil {
		return nil, err
	}

	r.instanceCache.Add(key, inst)
	return inst, nil
}

// createDirect builds a generic *adapter.Template parameterized entirely
// by metadata — the default path for sites following the standard
// configuration-driven lifecycle.
func (r *Registry) createDirect(meta flightmodel.AdapterMetadata, deps Deps) (Adapter, error) {
	return &adapter.Template{
		Metadata:     meta,
		NewSession:   deps.NewSession,
		RateLimiter:  deps.RateLimiter,
		Breakers:     deps.Breakers,
		ErrorHandler: deps.ErrorHandler,
	}, nil
}

// createModule resolves meta.ModuleName against the statically
// registered constructor set.
func (r *Registry) createModule(meta flightmodel.AdapterMetadata, deps Deps) (Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[meta.ModuleName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("factory: module constructor %q not registered for adapter %q", meta.ModuleName, meta.Name)
	}
	return ctor(meta, deps)
}

func (r *Registry) notFoundError(name string) error {
	suggestions := r.Suggest(name)
	if len(suggestions) == 0 {
		return fmt.Errorf("factory: adapter %q not found", name)
	}
	return fmt.Errorf("factory: adapter %q not found, did you mean: %v?", name, suggestions)
}

// Suggest returns up to 3 registered adapter names closest to name by
// Levenshtein edit distance, for typo-tolerant error messages.
func (r *Registry) Suggest(name string) []string {
	key := flightmodel.NormalizedName(name)

	r.mu.RLock()
	type scored struct {
		name string
		dist int
	}
	candidates := make([]scored, 0, len(r.metadata))
	for registered := range r.metadata {
		dist := levenshtein.ComputeDistance(key, registered)
		substr := strings.Contains(registered, key) || strings.Contains(key, registered)
		if dist > suggestionMaxDist && !substr {
			continue
		}
		candidates = append(candidates, scored{name: registered, dist: dist})
	}
	r.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})

	n := suggestionCount
	if len(candidates) < n {
		n = len(candidates)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].name
	}
	return out
}

// Names returns every registered adapter's normalized name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.metadata))
	for name := range r.metadata {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata returns the registered metadata for name, if present.
func (r *Registry) Metadata(name string) (flightmodel.AdapterMetadata, bool) {
	return r.lookupMetadata(name)
}
