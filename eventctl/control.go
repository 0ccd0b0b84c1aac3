// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package eventctl implements the event slot control plane: the lock-free,
// wait-free slot allocation/reference/eviction algorithms, the
// mixed-criticality QM/ASIL-B composite, and the RAII sample pointers that
// drive the atomic transitions. See the package's design document for the
// full contract; this file holds the single-criticality control array
// (EventDataControl), the wait-free allocate/reference/dereference
// algorithms, and crash-recovery helpers.
package eventctl

import (
	"code.hybscloud.com/spin"

	"code.hybscloud.com/lola/fatal"
	"code.hybscloud.com/lola/translog"
)

// EventDataControl owns one event's control array — the bounded sequence
// of slot status words — plus the set of transaction logs for its
// subscribers. It is constructed once by the publisher and
// lives in shared memory for as long as the event offer is active.
type EventDataControl struct {
	slots    []atomic64
	logs     *translog.Set
	newAtom  atomic64Factory
	counters *Counters
}

// NewEventDataControl constructs a control array with maxSlots slots, all
// initially Invalid, and room for maxSubscribers transaction logs.
func NewEventDataControl(maxSlots int, maxSubscribers int) *EventDataControl {
	return newEventDataControl(maxSlots, maxSubscribers, newRealAtomic64, &globalCounters)
}

func newEventDataControl(maxSlots, maxSubscribers int, newAtom atomic64Factory, counters *Counters) *EventDataControl {
	if maxSlots < 1 || maxSlots > MaxSlotsLimit {
		fatal.Terminate("eventctl: max_slots out of range", "max_slots", maxSlots, "limit", MaxSlotsLimit)
	}
	c := &EventDataControl{
		slots:    make([]atomic64, maxSlots),
		logs:     translog.NewSet(maxSubscribers, maxSlots),
		newAtom:  newAtom,
		counters: counters,
	}
	for i := range c.slots {
		c.slots[i] = newAtom(invalidWord)
	}
	return c
}

// MaxSampleSlots returns the number of slots configured at construction.
func (c *EventDataControl) MaxSampleSlots() int { return len(c.slots) }

// TransactionLogSet returns the owned transaction log set so proxies can
// register/unregister and the binding layer can drive crash recovery.
func (c *EventDataControl) TransactionLogSet() *translog.Set { return c.logs }

func (c *EventDataControl) checkIndex(i int) {
	if i < 0 || i >= len(c.slots) {
		terminateBoundsViolation(i, len(c.slots))
	}
}

// At returns the decoded status of slot i without acquiring a reference.
// Equivalent to the binding's operator[].
func (c *EventDataControl) At(i SlotIndex) slotStatus {
	c.checkIndex(int(i))
	return decodeStatus(c.slots[i].LoadAcquire())
}

// AllocateNextSlot finds the oldest unused slot and reserves it for
// writing. It retries at most MaxAllocateRetries times; on
// exhaustion it increments the alloc-miss counter and returns an invalid
// indicator.
func (c *EventDataControl) AllocateNextSlot() Indicator {
	sw := spin.Wait{}
	for attempt := 0; attempt < MaxAllocateRetries; attempt++ {
		idx, observed, found := c.findOldestUnusedSlot()
		if !found {
			sw.Once()
			c.counters.incAllocRetry()
			continue
		}
		if c.slots[idx].CompareAndSwapAcqRel(observed, inWritingWord) {
			return Indicator{index: SlotIndex(idx), cell: c.slots[idx]}
		}
		c.counters.incAllocRetry()
		sw.Once()
	}
	c.counters.incAllocMiss()
	return InvalidIndicator
}

// findOldestUnusedSlot implements the candidate-selection half of
// AllocateNextSlot: prefer any Invalid slot outright (no timestamp to
// compare), else the unused slot with the smallest timestamp. Ties break
// toward the lower index by scan order.
func (c *EventDataControl) findOldestUnusedSlot() (idx int, observed uint64, found bool) {
	bestIdx := -1
	var bestWord uint64
	var bestStatus slotStatus
	for i := range c.slots {
		word := c.slots[i].LoadAcquire()
		st := decodeStatus(word)
		if st.IsUsed() {
			continue
		}
		if st.IsInvalid() {
			return i, word, true
		}
		if bestIdx == -1 || st.timestamp < bestStatus.timestamp {
			bestIdx, bestWord, bestStatus = i, word, st
		}
	}
	if bestIdx == -1 {
		return 0, 0, false
	}
	return bestIdx, bestWord, true
}

// EventReady marks a writer-owned slot ready for reading at the given
// timestamp. The publisher is the sole writer by external
// contract, so no CAS is needed: a plain release store suffices.
func (c *EventDataControl) EventReady(ind Indicator, ts Timestamp) {
	ind.slot().StoreRelease(slotStatus{timestamp: ts, refcount: 0}.encode())
}

// Discard releases a writer-owned slot without publishing it. If the slot
// is still InWriting (EventReady was never called), it transitions to
// Invalid; otherwise it is a no-op, since the slot may already have
// readers.
func (c *EventDataControl) Discard(ind Indicator) {
	slot := ind.slot()
	slot.CompareAndSwapAcqRel(inWritingWord, invalidWord)
}

// ReferenceNextEvent searches for the youngest slot whose timestamp is
// strictly between lastSearchTime and upperLimit and, if found, increments
// its reference count on the caller's behalf. It retries at
// most MaxReferenceRetries times on CAS contention before giving up.
func (c *EventDataControl) ReferenceNextEvent(lastSearchTime Timestamp, logIdx translog.Index, upperLimit Timestamp) Indicator {
	sw := spin.Wait{}
	for attempt := 0; attempt < MaxReferenceRetries; attempt++ {
		idx, word, st, found := c.findYoungestInRange(lastSearchTime, upperLimit)
		if !found {
			return InvalidIndicator
		}
		if st.refcount == refcountInWriting-1 {
			terminateRefcountOverflow(SlotIndex(idx))
		}
		newWord := slotStatus{timestamp: st.timestamp, refcount: st.refcount + 1}.encode()

		log := c.logs.At(logIdx)
		log.Begin(uint16(idx), translog.IncrementStart)
		if c.slots[idx].CompareAndSwapAcqRel(word, newWord) {
			log.Commit(uint16(idx), translog.IncrementCommitted)
			return Indicator{index: SlotIndex(idx), cell: c.slots[idx]}
		}
		log.Abort(uint16(idx))
		c.counters.incRefRetry()
		sw.Once()
	}
	c.counters.incRefMiss()
	return InvalidIndicator
}

// findYoungestInRange scans for the slot with the largest timestamp
// satisfying TimestampBetween(lo, hi);.
func (c *EventDataControl) findYoungestInRange(lo, hi Timestamp) (idx int, word uint64, st slotStatus, found bool) {
	bestIdx := -1
	var bestWord uint64
	var bestStatus slotStatus
	for i := range c.slots {
		w := c.slots[i].LoadAcquire()
		s := decodeStatus(w)
		if !s.TimestampBetween(lo, hi) {
			continue
		}
		if bestIdx == -1 || s.timestamp > bestStatus.timestamp {
			bestIdx, bestWord, bestStatus = i, w, s
		}
	}
	if bestIdx == -1 {
		return 0, 0, slotStatus{}, false
	}
	return bestIdx, bestWord, bestStatus, true
}

// ReferenceSpecificEvent increments slot_index's refcount directly,
// without the timestamp search of ReferenceNextEvent. Used by a publisher
// that wants to read back a slot it just allocated and filled.
//
// This is only safe against concurrent incrementers (other
// ReferenceSpecificEvent/ReferenceNextEvent calls); the caller must
// guarantee no party can concurrently invalidate or re-reserve the slot,
// which holds when called by the owning publisher before handing out an
// AllocateePtr.
func (c *EventDataControl) ReferenceSpecificEvent(idx SlotIndex, logIdx translog.Index) {
	c.checkIndex(int(idx))
	log := c.logs.At(logIdx)
	log.Begin(idx, translog.IncrementStart)
	before := c.slots[idx].FetchAddAcqRel(1)
	if uint32(before) == refcountInWriting-1 {
		terminateRefcountOverflow(idx)
	}
	log.Commit(idx, translog.IncrementCommitted)
}

// DereferenceEvent releases a held reference and records the transaction
// as committed in the subscriber's log.
func (c *EventDataControl) DereferenceEvent(ind Indicator, logIdx translog.Index) {
	idx := ind.Index()
	log := c.logs.At(logIdx)
	log.Begin(idx, translog.DereferenceStart)
	c.decrementRefcount(idx)
	log.Commit(idx, translog.NotInProgress)
}

// DereferenceEventWithoutTransactionLogging releases a reference without
// touching any transaction log. Used by rollback, which resets the log
// entry itself after invoking this.
func (c *EventDataControl) DereferenceEventWithoutTransactionLogging(idx SlotIndex) {
	c.decrementRefcount(idx)
}

func (c *EventDataControl) decrementRefcount(idx SlotIndex) {
	c.checkIndex(int(idx))
	// Two's complement subtraction of 1 from the packed word: valid as
	// long as the lower 32 bits (refcount) never underflow into the
	// timestamp, which holds because callers only dereference a slot they
	// are known to hold a reference on.
	c.slots[idx].FetchAddAcqRel(^uint64(0))
}

// GetNumNewEvents counts slots that are readable (not Invalid, not
// InWriting) and newer than referenceTime.
func (c *EventDataControl) GetNumNewEvents(referenceTime Timestamp) int {
	n := 0
	for i := range c.slots {
		st := decodeStatus(c.slots[i].LoadAcquire())
		if st.IsInvalid() || st.IsInWriting() {
			continue
		}
		if st.timestamp > referenceTime {
			n++
		}
	}
	return n
}

// RemoveAllocationsForWriting marks every InWriting slot Invalid. Must
// only be called by a freshly started publisher after it has confirmed
// that no other live
// publisher exists; a CAS failure at that point means the precheck was
// violated by a bug, and is fatal.
func (c *EventDataControl) RemoveAllocationsForWriting() {
	for i := range c.slots {
		word := c.slots[i].LoadAcquire()
		if decodeStatus(word).IsInWriting() {
			if !c.slots[i].CompareAndSwapAcqRel(word, invalidWord) {
				terminateConcurrentWriterViolation(SlotIndex(i))
			}
		}
	}
}
