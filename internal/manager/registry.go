// Copyright 2024 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package manager

import "sync"

// Registry is the set of live sync mappings, newest first. All access holds
// a single mutex; callers never perform I/O while a registry operation is in
// flight.
type Registry struct {
	mu       sync.Mutex
	mappings []Mapping
}

// Add inserts a mapping at the head of the registry. It reports false,
// leaving the registry unchanged, if an entry with the same six-tuple
// identity already exists.
func (r *Registry) Add(m Mapping) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cur := range r.mappings {
		if cur == m {
			return false
		}
	}

	r.mappings = append([]Mapping{m}, r.mappings...)
	return true
}

// Cancel removes the first mapping whose source specifier matches. The
// destination is not part of cancel identity. It reports whether an entry
// was removed. Cancellation does not revoke queued jobs or interrupt an
// in-flight enumeration.
func (r *Registry) Cancel(srcSpec string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, cur := range r.mappings {
		if cur.SrcSpec() == srcSpec {
			r.mappings = append(r.mappings[:i], r.mappings[i+1:]...)
			return true
		}
	}

	return false
}

// Len returns the number of live mappings.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.mappings)
}

// Mappings returns a snapshot of the live mappings, newest first.
func (r *Registry) Mappings() []Mapping {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Mapping, len(r.mappings))
	copy(out, r.mappings)
	return out
}
