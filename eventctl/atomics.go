// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

import "code.hybscloud.com/atomix"

// atomic64 is the narrow atomic-access contract the control array is built
// on. Production code is backed by realAtomic64 (a thin code.hybscloud.com/atomix
// wrapper); tests substitute mockAtomic64 to inject races and forced overflow
// without needing real concurrent goroutines.
type atomic64 interface {
	LoadAcquire() uint64
	LoadRelaxed() uint64
	StoreRelease(v uint64)
	StoreRelaxed(v uint64)
	CompareAndSwapAcqRel(old, new uint64) bool
	// FetchAddAcqRel adds delta (two's complement for subtraction) and
	// returns the value observed before the add.
	FetchAddAcqRel(delta uint64) uint64
}

// atomic64Factory constructs a fresh atomic64 cell initialised to v.
// Swapping the factory is how EventDataControl is made generic over real
// vs. mock atomics without touching any call site.
type atomic64Factory func(v uint64) atomic64

// AtomicCell and AtomicCellFactory re-export atomic64/atomic64Factory under
// names an external package can implement. This is the seam the shmem
// package uses to back a control array with real shared-memory words
// instead of process-local atomix cells, without eventctl importing shmem.
type AtomicCell = atomic64
type AtomicCellFactory = atomic64Factory

// NewEventDataControlWithFactory constructs a control array the same way
// NewEventDataControl does, but backed by caller-provided atomic cells
// (for example shmem.ControlSlots.Factory()) instead of process-local
// atomix words.
func NewEventDataControlWithFactory(maxSlots, maxSubscribers int, newCell AtomicCellFactory) *EventDataControl {
	return newEventDataControl(maxSlots, maxSubscribers, newCell, &globalCounters)
}

func newRealAtomic64(v uint64) atomic64 {
	a := &realAtomic64{}
	a.word.StoreRelaxed(v)
	return a
}

// realAtomic64 wraps atomix.Uint64, the same lock-free status word
// primitive used throughout this module for packed atomic state.
type realAtomic64 struct {
	word atomix.Uint64
}

func (a *realAtomic64) LoadAcquire() uint64 { return a.word.LoadAcquire() }
func (a *realAtomic64) LoadRelaxed() uint64 { return a.word.LoadRelaxed() }
func (a *realAtomic64) StoreRelease(v uint64) { a.word.StoreRelease(v) }
func (a *realAtomic64) StoreRelaxed(v uint64) { a.word.StoreRelaxed(v) }

func (a *realAtomic64) CompareAndSwapAcqRel(old, new uint64) bool {
	return a.word.CompareAndSwapAcqRel(old, new)
}

// FetchAddAcqRel adds delta and returns the pre-add value. Subtraction is
// expressed as addition of the two's complement of the magnitude, the
// standard Go idiom for atomic decrement where only Add is exposed.
func (a *realAtomic64) FetchAddAcqRel(delta uint64) uint64 {
	after := a.word.AddAcqRel(delta)
	return after - delta
}

// atomicBool wraps atomix.Bool for the composite's one-way QM-isolation
// latch.
type atomicBool struct {
	v atomix.Bool
}

func (b *atomicBool) LoadAcquire() bool   { return b.v.LoadAcquire() }
func (b *atomicBool) StoreRelease(v bool) { b.v.StoreRelease(v) }
