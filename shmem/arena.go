// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shmem provides a POSIX shared-memory arena for hosting control
// arrays and event payload slots across process boundaries. It stands in
// for the offset-pointer allocator an event binding would normally obtain
// from its middleware's memory resource proxy: callers carve
// fixed-size regions out of one mmap'd region, and ControlSlots hands
// such a region's words to eventctl as its atomic cells. Transaction logs
// (package translog) are not placed in the arena; they live on the Go heap.
package shmem

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Arena owns one mmap'd region and hands out non-overlapping byte-slice
// regions from it via bump allocation. Allocate calls are serialized by a
// mutex; callers lay out an event's regions once at construction time,
// before publishing the event for subscribers to attach.
type Arena struct {
	mu       sync.Mutex
	data     []byte
	offset   int
	fd       int
	registry *Registry
}

// Permission selects the mmap protection flags for a region. ASIL-B
// regions are mapped with a stricter permission set than QM regions so a
// misbehaving QM-side process cannot write into ASIL-B-owned memory even
// if it holds a valid mapping of the same file descriptor.
type Permission int

const (
	// PermissionReadWrite is the default: the mapping caller may read and
	// write its region (the publisher side of a QM event).
	PermissionReadWrite Permission = iota
	// PermissionReadOnly restricts the mapping to reads, for subscriber
	// processes that must never mutate a control array directly.
	PermissionReadOnly
)

// NewAnonymousArena mmaps an anonymous, shared region of size bytes. This
// is the common case for same-host control-plane testing and for
// single-binary deployments that fork rather than exec; Register still
// tracks the resulting address range for bounds checking.
func NewAnonymousArena(size int, registry *Registry) (*Arena, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("shmem: mmap anonymous region of %d bytes: %w", size, err)
	}
	a := &Arena{data: data, fd: -1, registry: registry}
	if registry != nil {
		registry.register(a.Base(), a.Base()+uintptr(size))
	}
	return a, nil
}

// NewFileBackedArena mmaps size bytes of the open file descriptor fd,
// which the caller is expected to have created via shm_open or a
// tmpfs-backed file so that multiple processes can map the same region.
func NewFileBackedArena(fd int, size int, registry *Registry) (*Arena, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shmem: mmap fd %d of %d bytes: %w", fd, size, err)
	}
	a := &Arena{data: data, fd: fd, registry: registry}
	if registry != nil {
		registry.register(a.Base(), a.Base()+uintptr(size))
	}
	return a, nil
}

// Base returns the arena's starting address, used for bounds-registry
// bookkeeping.
func (a *Arena) Base() uintptr {
	if len(a.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&a.data[0]))
}

// Allocate carves n bytes out of the arena and returns the resulting
// slice. Returns an error if the arena has insufficient remaining space.
func (a *Arena) Allocate(n int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.offset+n > len(a.data) {
		return nil, fmt.Errorf("shmem: arena exhausted: requested %d bytes, %d remaining", n, len(a.data)-a.offset)
	}
	region := a.data[a.offset : a.offset+n]
	a.offset += n
	return region, nil
}

// Protect changes the mapping's protection flags, used to drop a
// subscriber-side mapping to read-only after it has finished its
// writable setup phase.
func (a *Arena) Protect(perm Permission) error {
	prot := unix.PROT_READ | unix.PROT_WRITE
	if perm == PermissionReadOnly {
		prot = unix.PROT_READ
	}
	if err := unix.Mprotect(a.data, prot); err != nil {
		return fmt.Errorf("shmem: mprotect: %w", err)
	}
	return nil
}

// Close unmaps the arena's region. The arena must not be used afterward.
func (a *Arena) Close() error {
	if a.registry != nil {
		a.registry.unregister(a.Base())
	}
	if err := unix.Munmap(a.data); err != nil {
		return fmt.Errorf("shmem: munmap: %w", err)
	}
	a.data = nil
	return nil
}

// Len reports the arena's total size in bytes.
func (a *Arena) Len() int { return len(a.data) }
