// Copyright 2025 James Ross

// Package registry implements the service registry & matcher: loading
// plugin-backed and reference (JSON-stub) services, filtering disabled
// services, and the name/resource/keyword matchers.
//
// PluginRegistry replaces raw function-pointer vtables and manual
// open-count refcounting with an arena-style registry: native plugins
// register a Factory at package-init time (the same pattern
// database/sql and image use for drivers/codecs), and the registry owns
// the resulting Implementation values, unloading one when its handle
// count reaches zero. This deliberately avoids a WASM/dlopen sandbox:
// no wasm runtime import appears anywhere in this module's dependency
// graph, so it isn't a grounded choice here.
package registry

import (
	"fmt"
	"sync"

	"github.com/TGAC/grassroots-core/internal/service"
)

// Factory constructs a plugin's Implementation from its merged
// configuration (the service's Config plus, for reference services, the
// stub's per-operation config).
type Factory func(config map[string]interface{}) (service.Implementation, error)

type handle struct {
	impl  service.Implementation
	count int
}

// PluginRegistry owns loaded plugin instances, keyed by plugin name.
type PluginRegistry struct {
	mu        sync.Mutex
	factories map[string]Factory
	handles   map[string]*handle
}

// NewPluginRegistry returns an empty PluginRegistry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		factories: make(map[string]Factory),
		handles:   make(map[string]*handle),
	}
}

var global = NewPluginRegistry()

// RegisterPlugin registers a native plugin's factory under the global
// registry. Plugins call this from an init() function, the idiom
// database/sql drivers use.
func RegisterPlugin(name string, factory Factory) {
	global.RegisterFactory(name, factory)
}

// Global returns the process-wide PluginRegistry that RegisterPlugin
// populates.
func Global() *PluginRegistry { return global }

// RegisterFactory registers a plugin factory on this registry instance.
func (r *PluginRegistry) RegisterFactory(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Acquire builds (or returns the cached) Implementation for a plugin,
// incrementing its handle count. Config is only used on first build;
// subsequent acquires of the same plugin name share the instance.
func (r *PluginRegistry) Acquire(name string, config map[string]interface{}) (service.Implementation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[name]; ok {
		h.count++
		return h.impl, nil
	}

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("registry: no plugin registered under name %q", name)
	}
	impl, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("registry: plugin %q: load error: %w", name, err)
	}
	r.handles[name] = &handle{impl: impl, count: 1}
	return impl, nil
}

// Release decrements a plugin's handle count, closing and evicting it
// when the count reaches zero.
func (r *PluginRegistry) Release(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[name]
	if !ok {
		return nil
	}
	h.count--
	if h.count > 0 {
		return nil
	}
	delete(r.handles, name)
	return h.impl.Close()
}

// HandleCount reports the current open-count for a plugin name, for
// tests and diagnostics.
func (r *PluginRegistry) HandleCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[name]; ok {
		return h.count
	}
	return 0
}
