// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmem

import "sync"

// Registry tracks the address ranges of every live arena in this process,
// mirroring the bounds-checked dynamic array the original binding's
// MemoryResourceProxy performs pointer validation against. It exists so a
// caller holding a raw offset or pointer derived from shared memory can be
// validated before use, independent of which Arena produced it.
type Registry struct {
	mu     sync.RWMutex
	ranges []addrRange
}

type addrRange struct {
	lo, hi uintptr
}

// NewRegistry returns an empty address-range registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) register(lo, hi uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranges = append(r.ranges, addrRange{lo: lo, hi: hi})
}

func (r *Registry) unregister(lo uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rg := range r.ranges {
		if rg.lo == lo {
			r.ranges = append(r.ranges[:i], r.ranges[i+1:]...)
			return
		}
	}
}

// Contains reports whether addr falls within some registered arena's
// range.
func (r *Registry) Contains(addr uintptr) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rg := range r.ranges {
		if addr >= rg.lo && addr < rg.hi {
			return true
		}
	}
	return false
}
