// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

import "code.hybscloud.com/lola/translog"

// AllocateePtr is the writer-side RAII handle held between AllocateNextSlot
// and the matching EventReady or Discard. It is move-only;
// Go has no move semantics, so that contract is expressed as: Release
// clears the receiver so a second Release is a safe no-op, and any copy of
// an already-released AllocateePtr is inert.
type AllocateePtr struct {
	payload   []byte
	composite *Composite
	indicator CompositeIndicator
	live      bool
}

// NewAllocateePtr wraps a freshly allocated slot. payload is the writable
// view into the event's data array at the same slot index, sized and laid
// out by the caller.
func NewAllocateePtr(payload []byte, composite *Composite, indicator CompositeIndicator) AllocateePtr {
	return AllocateePtr{payload: payload, composite: composite, indicator: indicator, live: true}
}

// IsValid reports whether this handle still owns an unpublished,
// undiscarded slot.
func (p *AllocateePtr) IsValid() bool { return p.live }

// Payload returns the writable payload buffer. Terminates if the pointer
// has already been published, discarded, or default-constructed.
func (p *AllocateePtr) Payload() []byte {
	if !p.live {
		terminateInvalidIndicator()
	}
	return p.payload
}

// Send publishes the slot at the given timestamp and releases this
// handle's ownership.
func (p *AllocateePtr) Send(ts Timestamp) {
	if !p.live {
		terminateDoubleDrop()
	}
	p.composite.EventReady(p.indicator, ts)
	p.live = false
}

// Discard abandons the slot without publishing it, releasing this
// handle's ownership.
func (p *AllocateePtr) Discard() {
	if !p.live {
		terminateDoubleDrop()
	}
	p.composite.Discard(p.indicator)
	p.live = false
}

// Release implements the "drop" half of the RAII contract: if the caller
// never called Send or Discard, the underlying slot is discarded if it is
// still InWriting, and otherwise left alone. Release is idempotent.
func (p *AllocateePtr) Release() {
	if !p.live {
		return
	}
	p.composite.Discard(p.indicator)
	p.live = false
}

// slotDecrementer is the reader-side half of the dereference contract: it
// holds exactly the triple (control, indicator, log index) needed to
// release a reference, and decrements on Release. Grounded on the
// binding's SlotDecrementer, which exists solely so SamplePtr's optional
// field can be "empty after move" without re-litigating ownership of the
// raw control pointer.
type slotDecrementer struct {
	control   *EventDataControl
	indicator Indicator
	logIndex  translog.Index
	live      bool
}

func newSlotDecrementer(control *EventDataControl, indicator Indicator, logIndex translog.Index) slotDecrementer {
	return slotDecrementer{control: control, indicator: indicator, logIndex: logIndex, live: true}
}

func (d *slotDecrementer) release() {
	if !d.live {
		return
	}
	d.control.DereferenceEvent(d.indicator, d.logIndex)
	d.live = false
}

// SamplePtr is the reader-side RAII handle a subscriber holds while
// reading one sample. Go has no move semantics and SamplePtr has no move
// operation: Release marks this value's decrementer spent, so calling
// Release again on the same value does not decrement again. A copy made
// before Release carries its own live decrementer and decrements again
// when it is released.
type SamplePtr[T any] struct {
	value       *T
	decrementer slotDecrementer
}

// NewSamplePtr constructs a valid SamplePtr over value, backed by the
// given control/indicator/log-index triple for later release.
func NewSamplePtr[T any](value *T, control *EventDataControl, indicator Indicator, logIndex translog.Index) SamplePtr[T] {
	return SamplePtr[T]{value: value, decrementer: newSlotDecrementer(control, indicator, logIndex)}
}

// NilSamplePtr returns an invalid SamplePtr, for the case where a lookup
// finds nothing to reference.
func NilSamplePtr[T any]() SamplePtr[T] {
	return SamplePtr[T]{}
}

// IsValid reports whether this SamplePtr owns a managed object.
func (p *SamplePtr[T]) IsValid() bool { return p.value != nil }

// Get dereferences the managed object. Terminates if the pointer is
// invalid.
func (p *SamplePtr[T]) Get() *T {
	if p.value == nil {
		terminateInvalidIndicator()
	}
	return p.value
}

// Release drops the reference, decrementing the slot's refcount exactly
// once even if called multiple times on the same value. It does not
// affect copies of the SamplePtr.
func (p *SamplePtr[T]) Release() {
	p.decrementer.release()
	p.value = nil
}
