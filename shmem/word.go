// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmem

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"code.hybscloud.com/lola/eventctl"
)

// Word is a single 64-bit slot status cell living at a fixed offset inside
// an Arena's mapped region. Unlike code.hybscloud.com/atomix.Uint64, which
// owns its storage as a struct field, Word operates on a *uint64 pointer
// into memory that may be mapped into more than one process, so it is
// built on the standard library's sync/atomic rather than atomix: atomix
// has no constructor that adopts an existing address, only embeds its own.
type Word struct {
	p *uint64
}

func newWord(b []byte) *Word {
	if len(b) < 8 {
		panic("shmem: word region smaller than 8 bytes")
	}
	return &Word{p: (*uint64)(unsafe.Pointer(&b[0]))}
}

func (w *Word) LoadAcquire() uint64 { return atomic.LoadUint64(w.p) }
func (w *Word) LoadRelaxed() uint64 { return atomic.LoadUint64(w.p) }
func (w *Word) StoreRelease(v uint64) { atomic.StoreUint64(w.p, v) }
func (w *Word) StoreRelaxed(v uint64) { atomic.StoreUint64(w.p, v) }

func (w *Word) CompareAndSwapAcqRel(old, new uint64) bool {
	return atomic.CompareAndSwapUint64(w.p, old, new)
}

func (w *Word) FetchAddAcqRel(delta uint64) uint64 {
	return atomic.AddUint64(w.p, delta) - delta
}

// ControlSlots is a contiguous run of Words carved out of an Arena, sized
// to back one eventctl.EventDataControl's control array.
type ControlSlots struct {
	words []*Word
}

// NewControlSlots allocates n eight-byte words from the arena and wraps
// each in a Word, ready to be handed to
// eventctl.NewEventDataControlWithFactory via Factory.
func (a *Arena) NewControlSlots(n int) (ControlSlots, error) {
	region, err := a.Allocate(n * 8)
	if err != nil {
		return ControlSlots{}, err
	}
	cs := ControlSlots{words: make([]*Word, n)}
	for i := 0; i < n; i++ {
		cs.words[i] = newWord(region[i*8 : i*8+8])
	}
	return cs, nil
}

// wordAt reconstructs a Word at a fixed byte offset into the arena,
// validating the resulting address against the registry before handing
// back something a caller will dereference. NewControlSlots never needs
// this: its offsets come from the arena's own bump allocator and are
// trusted by construction. wordAt is for the opposite direction — a
// process attaching to shared memory it did not allocate, at an offset it
// received from somewhere else (a deployment descriptor, a peer process),
// which must be checked before it is trusted.
func (a *Arena) wordAt(offset int) (*Word, error) {
	if offset < 0 || offset+8 > len(a.data) {
		return nil, fmt.Errorf("shmem: word offset %d out of range for a %d-byte arena", offset, len(a.data))
	}
	region := a.data[offset : offset+8]
	addr := uintptr(unsafe.Pointer(&region[0]))
	if a.registry != nil && !a.registry.Contains(addr) {
		return nil, fmt.Errorf("shmem: word at offset %d resolves outside any registered arena", offset)
	}
	return newWord(region), nil
}

// AttachControlSlots reconstructs n control words starting at byteOffset
// into an arena that was mapped by NewFileBackedArena rather than
// allocated by this process, validating each word's address against the
// registry before returning it. This is the subscriber-side counterpart
// to NewControlSlots: the publisher that owns the arena carves slots with
// NewControlSlots as it allocates; a process attaching to that same
// shared-memory file descriptor later reconstructs the same words from
// the agreed-upon offset with AttachControlSlots.
func (a *Arena) AttachControlSlots(byteOffset, n int) (ControlSlots, error) {
	cs := ControlSlots{words: make([]*Word, n)}
	for i := 0; i < n; i++ {
		w, err := a.wordAt(byteOffset + i*8)
		if err != nil {
			return ControlSlots{}, fmt.Errorf("shmem: attach control slot %d: %w", i, err)
		}
		cs.words[i] = w
	}
	return cs, nil
}

// LoadAll reads every slot's current raw status word without mutating
// any of them, for inspecting a control array (for example one belonging
// to another process reached via AttachControlSlots) without
// participating in it as a publisher or subscriber.
func (cs ControlSlots) LoadAll() []uint64 {
	out := make([]uint64, len(cs.words))
	for i, w := range cs.words {
		out[i] = w.LoadAcquire()
	}
	return out
}

// Factory returns an eventctl.AtomicCellFactory that hands out this
// region's words in order, one per call. It must be called exactly n
// times for a ControlSlots of size n (eventctl.NewEventDataControlWithFactory
// does this internally).
func (cs ControlSlots) Factory() eventctl.AtomicCellFactory {
	next := 0
	return func(v uint64) eventctl.AtomicCell {
		w := cs.words[next]
		next++
		w.StoreRelaxed(v)
		return w
	}
}
