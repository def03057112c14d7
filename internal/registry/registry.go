// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

// Package registry maps mount points to module instances and builds that
// mapping from a static table of module definitions.
//
// Lookups take a read lock and proceed in parallel. Register, ReplaceAll and
// Update take the write lock. sync.RWMutex stops admitting new readers once
// a writer is waiting, so a steady stream of lookups cannot starve an
// administrative update.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/scuttle/internal/metrics"
	"github.com/tomtom215/scuttle/internal/module"
	"github.com/tomtom215/scuttle/internal/validation"
)

var (
	// ErrInvalidPath is returned for mount points that are not a single
	// path segment.
	ErrInvalidPath = errors.New("registry: invalid mount path")

	// ErrDuplicatePath is returned when a mount point is already taken.
	ErrDuplicatePath = errors.New("registry: mount path already registered")

	// ErrNilModule is returned when registering a nil module.
	ErrNilModule = errors.New("registry: nil module")
)

// Entry is one mounted module.
type Entry struct {
	Path   string
	Module module.Module
}

// Registry is a concurrency-safe mount point to module map.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]module.Module
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{modules: make(map[string]module.Module)}
}

// Register mounts m at path.
func (r *Registry) Register(path string, m module.Module) error {
	if err := checkEntry(path, m); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[path]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePath, path)
	}
	r.modules[path] = m
	metrics.ModulesRegistered.Set(float64(len(r.modules)))
	return nil
}

// Lookup returns the module mounted at path. A miss is not an error.
func (r *Registry) Lookup(path string) (module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[path]
	return m, ok
}

// Snapshot returns the mounted modules ordered by path.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.modules))
	for path, m := range r.modules {
		out = append(out, Entry{Path: path, Module: m})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Paths returns the mount points in sorted order.
func (r *Registry) Paths() []string {
	entries := r.Snapshot()
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

// Len returns the number of mounted modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// ReplaceAll swaps the whole mapping in one step. Every entry is checked
// first; on error the registry is left unchanged. Lookups that start after
// ReplaceAll returns observe the new mapping.
func (r *Registry) ReplaceAll(modules map[string]module.Module) error {
	next := make(map[string]module.Module, len(modules))
	for path, m := range modules {
		if err := checkEntry(path, m); err != nil {
			return err
		}
		next[path] = m
	}

	r.mu.Lock()
	r.modules = next
	r.mu.Unlock()
	metrics.ModulesRegistered.Set(float64(len(next)))
	return nil
}

// Update applies fn to a copy of the mapping while holding the write lock
// and installs the result if fn and the entry checks succeed.
func (r *Registry) Update(fn func(modules map[string]module.Module) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := make(map[string]module.Module, len(r.modules))
	for path, m := range r.modules {
		work[path] = m
	}
	if err := fn(work); err != nil {
		return err
	}
	for path, m := range work {
		if err := checkEntry(path, m); err != nil {
			return err
		}
	}
	r.modules = work
	metrics.ModulesRegistered.Set(float64(len(work)))
	return nil
}

func checkEntry(path string, m module.Module) error {
	if !validation.IsMountPath(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if m == nil {
		return fmt.Errorf("%w at %q", ErrNilModule, path)
	}
	return nil
}
