// Package config loads adapter and crawler configuration from nested
// map[string]any documents (the same shape adapters' metadata arrives in
// as YAML/JSON), deep-merging a site-specific document over shared
// defaults and caching the merged result for 5 minutes.
//
// Grounded on auth/factory.go's cfg["key"].(type) extraction idiom (used
// here by Lookup's typed accessors) and secret.Resolver's environment-
// variable expansion for string leaves (via secret.ExpandEnvStrict).
package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flightcrawl/core/secret"
)

// TTL is the config cache lifetime: re-fetching the same name within this
// window returns the cached merged document instead of recomputing it.
const TTL = 5 * time.Minute

// Document is a loaded, possibly-merged configuration tree.
type Document map[string]any

// deepMerge overlays src onto dst, recursing into nested maps and letting
// src's scalars and slices win outright.
func deepMerge(dst, src Document) Document {
	out := make(Document, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := out[k].(map[string]any); ok {
				out[k] = map[string]any(deepMerge(Document(dstMap), Document(srcMap)))
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Lookup provides cfg["key"].(type) style typed extraction with a
// fallback, matching auth/factory.go's configuration-reading convention.
func Lookup[T any](doc Document, key string, fallback T) T {
	if raw, ok := doc[key]; ok {
		if v, ok := raw.(T); ok {
			return v
		}
	}
	return fallback
}

// Sub returns the nested document at key, or an empty Document if absent
// or not a map.
func Sub(doc Document, key string) Document {
	if raw, ok := doc[key]; ok {
		if m, ok := raw.(map[string]any); ok {
			return Document(m)
		}
	}
	return Document{}
}

// Validator checks a merged Document for required keys and invariants
// beyond plain type extraction (e.g. adapter metadata completeness).
type Validator func(Document) error

type cacheEntry struct {
	doc       Document
	expiresAt time.Time
}

// Loader merges named documents over a shared base and caches the merged
// result for TTL. It does not resolve secretref:/env placeholders;
// ResolveStrings does that as a separate step.
type Loader struct {
	mu        sync.Mutex
	base      Document
	overrides map[string]Document
	cache     map[string]cacheEntry
	validate  Validator
	now       func() time.Time
}

// NewLoader creates a Loader with base as the shared defaults document.
func NewLoader(base Document, validate Validator) *Loader {
	return &Loader{
		base:      base,
		overrides: make(map[string]Document),
		cache:     make(map[string]cacheEntry),
		validate:  validate,
		now:       time.Now,
	}
}

// SetOverride registers (or replaces) name's override document, evicting
// any cached merge so the next Load recomputes it.
func (l *Loader) SetOverride(name string, doc Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[name] = doc
	delete(l.cache, name)
}

// Load returns name's configuration merged over the shared base, using
// the cached value if still within TTL.
func (l *Loader) Load(name string) (Document, error) {
	l.mu.Lock()
	if entry, ok := l.cache[name]; ok && l.now().Before(entry.expiresAt) {
		defer l.mu.Unlock()
		return entry.doc, nil
	}
	override := l.overrides[name]
	l.mu.Unlock()

	merged := deepMerge(l.base, override)
	if l.validate != nil {
		if err := l.validate(merged); err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
	}

	l.mu.Lock()
	l.cache[name] = cacheEntry{doc: merged, expiresAt: l.now().Add(TTL)}
	l.mu.Unlock()
	return merged, nil
}

// ResolveStrings walks doc's string leaves (one level, non-recursive is
// sufficient for the flat adapter-config documents this loads) through r,
// expanding secretref:/env placeholders.
func ResolveStrings(ctx context.Context, r *secret.Resolver, doc Document) (Document, error) {
	out := make(Document, len(doc))
	for k, v := range doc {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		resolved, err := r.ResolveValue(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("config: resolve %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}
