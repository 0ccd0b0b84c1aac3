// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

import "code.hybscloud.com/spin"

// Composite wraps one mandatory QM control and an optional ASIL-B control,
// allocating across both atomically and isolating misbehaving QM
// consumers when they starve ASIL-B allocation.
type Composite struct {
	qm    *EventDataControl
	asilB *EventDataControl // nil if this composite has no ASIL-B section

	ignoreQM atomicBool
}

// NewComposite constructs a composite managing only a QM control (no
// ASIL-B use case). Terminates if qm is nil.
func NewComposite(qm *EventDataControl) *Composite {
	if qm == nil {
		terminateCompositeConstruction()
	}
	return &Composite{qm: qm}
}

// NewCompositeWithAsilB constructs a composite managing both a QM and an
// ASIL-B control. Terminates if qm is nil.
func NewCompositeWithAsilB(qm, asilB *EventDataControl) *Composite {
	if qm == nil {
		terminateCompositeConstruction()
	}
	return &Composite{qm: qm, asilB: asilB}
}

// IsQMControlDisconnected reports whether the one-way QM-isolation latch
// has tripped.
func (c *Composite) IsQMControlDisconnected() bool {
	if c.asilB == nil {
		return false
	}
	return c.ignoreQM.LoadAcquire()
}

// QMControl returns the mandatory QM control.
func (c *Composite) QMControl() *EventDataControl { return c.qm }

// AsilBControl returns the optional ASIL-B control, or nil.
func (c *Composite) AsilBControl() *EventDataControl { return c.asilB }

// AllocateNextSlot allocates a slot across both sections.
//
//   - No ASIL-B section: delegate entirely to the QM control.
//   - QM already isolated: delegate entirely to the ASIL-B control.
//   - Otherwise: lock-step multi-slot allocation across both arrays, with
//     rollback of the QM side on ASIL-B lock failure. After
//     MaxMultiAllocateRetries consecutive failures, latch ignoreQM and
//     fall back to ASIL-B-only allocation.
func (c *Composite) AllocateNextSlot() CompositeIndicator {
	if c.asilB == nil {
		ind := c.qm.AllocateNextSlot()
		if !ind.IsValid() {
			return InvalidCompositeIndicator
		}
		return CompositeIndicator{index: ind.index, qm: ind.cell}
	}
	if c.ignoreQM.LoadAcquire() {
		ind := c.asilB.AllocateNextSlot()
		if !ind.IsValid() {
			return InvalidCompositeIndicator
		}
		return CompositeIndicator{index: ind.index, asilB: ind.cell}
	}

	sw := spin.Wait{}
	for attempt := 0; attempt < MaxMultiAllocateRetries; attempt++ {
		idx, qmWord, bWord, found := c.findNextFreeMultiSlot()
		if !found {
			sw.Once()
			continue
		}
		if c.tryLockSlot(idx, qmWord, bWord) {
			return CompositeIndicator{index: SlotIndex(idx), qm: c.qm.slots[idx], asilB: c.asilB.slots[idx]}
		}
		sw.Once()
	}

	// QM consumer isolation: a misbehaving QM consumer can hold every QM
	// slot indefinitely, starving ASIL-B publication. Once we've failed to
	// lock a (QM, ASIL-B) pair this many times running, give up on QM for
	// the rest of this composite's lifetime and keep serving ASIL-B.
	c.ignoreQM.StoreRelease(true)
	ind := c.asilB.AllocateNextSlot()
	if !ind.IsValid() {
		return InvalidCompositeIndicator
	}
	return CompositeIndicator{index: ind.index, asilB: ind.cell}
}

// findNextFreeMultiSlot scans both arrays in lockstep. A candidate (i) has
// an Invalid ASIL-B slot (no timestamp to compare) or both sides unused.
// Among candidates, prefer the smallest ASIL-B timestamp.
func (c *Composite) findNextFreeMultiSlot() (idx int, qmWord, bWord uint64, found bool) {
	bestIdx := -1
	var bestQMWord, bestBWord uint64
	var bestBStatus slotStatus
	n := len(c.qm.slots)
	for i := 0; i < n; i++ {
		qw := c.qm.slots[i].LoadAcquire()
		bw := c.asilB.slots[i].LoadAcquire()
		bSt := decodeStatus(bw)
		qSt := decodeStatus(qw)
		if !(bSt.IsInvalid() || (!qSt.IsUsed() && !bSt.IsUsed())) {
			continue
		}
		if bSt.IsInvalid() {
			return i, qw, bw, true
		}
		if bestIdx == -1 || bSt.timestamp < bestBStatus.timestamp {
			bestIdx, bestQMWord, bestBWord, bestBStatus = i, qw, bw, bSt
		}
	}
	if bestIdx == -1 {
		return 0, 0, 0, false
	}
	return bestIdx, bestQMWord, bestBWord, true
}

// tryLockSlot CASes the QM side to InWriting, then the ASIL-B side; on
// ASIL-B failure it restores the QM side to its observed value so a
// failed multi-allocate leaves no trace.
func (c *Composite) tryLockSlot(idx int, observedQM, observedB uint64) bool {
	if !c.qm.slots[idx].CompareAndSwapAcqRel(observedQM, inWritingWord) {
		return false
	}
	if !c.asilB.slots[idx].CompareAndSwapAcqRel(observedB, inWritingWord) {
		c.qm.slots[idx].StoreRelease(observedQM)
		return false
	}
	return true
}

// EventReady delegates to each present side's EventReady, ASIL-B first
// then QM. Once the QM-isolation latch has tripped, the QM side is never
// touched again regardless of what this particular indicator carries: an
// indicator obtained before the latch tripped may still carry a QM tag,
// and honoring it would let an isolated QM array keep participating.
func (c *Composite) EventReady(ind CompositeIndicator, ts Timestamp) {
	if ind.IsValidAsilB() {
		c.asilB.EventReady(ind.asilBIndicator(), ts)
	}
	if ind.IsValidQM() && !c.ignoreQM.LoadAcquire() {
		c.qm.EventReady(ind.qmIndicator(), ts)
	}
}

// Discard delegates to each present side's Discard, symmetric to
// EventReady, including the same post-latch QM suppression.
func (c *Composite) Discard(ind CompositeIndicator) {
	if ind.IsValidAsilB() {
		c.asilB.Discard(ind.asilBIndicator())
	}
	if ind.IsValidQM() && !c.ignoreQM.LoadAcquire() {
		c.qm.Discard(ind.qmIndicator())
	}
}

// GetLatestTimestamp returns the maximum timestamp among readable slots in
// the ASIL-B array if present, else the QM array; 1 if no valid slot
// exists.
func (c *Composite) GetLatestTimestamp() Timestamp {
	control := c.qm
	if c.asilB != nil {
		control = c.asilB
	}
	var maxTS Timestamp = 1
	found := false
	for i := range control.slots {
		st := decodeStatus(control.slots[i].LoadAcquire())
		if st.IsInvalid() || st.IsInWriting() {
			continue
		}
		if !found || st.timestamp > maxTS {
			maxTS = st.timestamp
			found = true
		}
	}
	return maxTS
}
