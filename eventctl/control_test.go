// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

import (
	"testing"

	"code.hybscloud.com/lola/translog"
)

func newTestControl(maxSlots, maxSubscribers int) *EventDataControl {
	return newEventDataControl(maxSlots, maxSubscribers, newMockAtomic64, &Counters{})
}

// TestAllocatePublishPollOldestNewest reproduces scenario 1 of
// five published timestamps polled newest-first and oldest-first.
func TestAllocatePublishPollOldestNewest(t *testing.T) {
	c := newTestControl(5, 1)
	for ts := Timestamp(1); ts <= 5; ts++ {
		ind := c.AllocateNextSlot()
		if !ind.IsValid() {
			t.Fatalf("allocate failed for ts=%d", ts)
		}
		c.EventReady(ind, ts)
	}

	logIdx, ok := c.logs.Register(identityForTest(1), c.DereferenceEventWithoutTransactionLogging)
	if !ok {
		t.Fatalf("register failed")
	}

	// Newest-first: fix last_search_time at 0, shrink upper bound each time.
	upper := MaxTimestamp
	wantNewestFirst := []Timestamp{5, 4, 3, 2, 1}
	for _, want := range wantNewestFirst {
		ind := c.ReferenceNextEvent(0, logIdx, upper)
		if !ind.IsValid() {
			t.Fatalf("expected valid indicator polling newest-first for want=%d", want)
		}
		got := c.At(ind.Index())
		if got.timestamp != want {
			t.Fatalf("newest-first: got ts=%d, want %d", got.timestamp, want)
		}
		c.DereferenceEvent(ind, logIdx)
		upper = want
	}

	// Oldest-first: fix upper at MaxTimestamp, raise last_search_time each time.
	last := Timestamp(0)
	wantOldestFirst := []Timestamp{1, 2, 3, 4, 5}
	for _, want := range wantOldestFirst {
		ind := c.ReferenceNextEvent(last, logIdx, MaxTimestamp)
		if !ind.IsValid() {
			t.Fatalf("expected valid indicator polling oldest-first for want=%d", want)
		}
		got := c.At(ind.Index())
		if got.timestamp != want {
			t.Fatalf("oldest-first: got ts=%d, want %d", got.timestamp, want)
		}
		c.DereferenceEvent(ind, logIdx)
		last = want
	}
}

// TestAllocateReclaimsOldestPublishedSlot reproduces scenario 2: once all
// slots are published, allocation reclaims the oldest timestamp.
func TestAllocateReclaimsOldestPublishedSlot(t *testing.T) {
	c := newTestControl(5, 1)
	var oldestIdx SlotIndex
	for i, ts := 0, Timestamp(1); ts <= 5; i, ts = i+1, ts+1 {
		ind := c.AllocateNextSlot()
		c.EventReady(ind, ts)
		if ts == 1 {
			oldestIdx = ind.Index()
		}
	}

	ind := c.AllocateNextSlot()
	if !ind.IsValid() {
		t.Fatalf("expected allocation to succeed by reclaiming the oldest slot")
	}
	if ind.Index() != oldestIdx {
		t.Fatalf("expected reclaimed slot to be the one with ts=1 (index %d), got %d", oldestIdx, ind.Index())
	}
	if !c.At(ind.Index()).IsInWriting() {
		t.Fatalf("reclaimed slot must be InWriting")
	}
}

// TestDiscardWhileInWritingInvalidates covers and scenario 5.
func TestDiscardWhileInWritingInvalidates(t *testing.T) {
	c := newTestControl(2, 1)
	ind := c.AllocateNextSlot()
	c.Discard(ind)
	if !c.At(ind.Index()).IsInvalid() {
		t.Fatalf("expected slot to become Invalid after discard while InWriting")
	}
}

// TestDiscardAfterPublishIsNoOp verifies discarding a slot that has
// already been published is a harmless no-op.
func TestDiscardAfterPublishIsNoOp(t *testing.T) {
	c := newTestControl(2, 1)
	ind := c.AllocateNextSlot()
	c.EventReady(ind, 1)
	before := c.At(ind.Index())
	c.Discard(ind)
	after := c.At(ind.Index())
	if before != after {
		t.Fatalf("discard after publish must be a no-op: before=%+v after=%+v", before, after)
	}
}

// TestReferenceThenDereferenceLeavesRefcountUnchanged checks that a
// balanced reference/dereference pair leaves the refcount unchanged.
func TestReferenceThenDereferenceLeavesRefcountUnchanged(t *testing.T) {
	c := newTestControl(3, 1)
	ind := c.AllocateNextSlot()
	c.EventReady(ind, 10)
	before := c.At(ind.Index()).refcount

	logIdx, _ := c.logs.Register(identityForTest(1), c.DereferenceEventWithoutTransactionLogging)
	got := c.ReferenceNextEvent(0, logIdx, MaxTimestamp)
	if !got.IsValid() {
		t.Fatalf("expected a valid reference")
	}
	c.DereferenceEvent(got, logIdx)

	after := c.At(ind.Index()).refcount
	if before != after {
		t.Fatalf("refcount changed across reference+dereference: before=%d after=%d", before, after)
	}
}

// TestReferenceNextEventReturnsYoungestInRange checks that among all
// slots whose timestamp falls in range, the youngest one wins.
func TestReferenceNextEventReturnsYoungestInRange(t *testing.T) {
	c := newTestControl(5, 1)
	for ts := Timestamp(1); ts <= 5; ts++ {
		ind := c.AllocateNextSlot()
		c.EventReady(ind, ts)
	}
	logIdx, _ := c.logs.Register(identityForTest(1), c.DereferenceEventWithoutTransactionLogging)

	ind := c.ReferenceNextEvent(1, logIdx, 5)
	if !ind.IsValid() {
		t.Fatalf("expected a match strictly between 1 and 5")
	}
	if got := c.At(ind.Index()).timestamp; got != 4 {
		t.Fatalf("expected youngest slot in (1,5) to be ts=4, got %d", got)
	}
}

// TestReferenceNextEventNoMatchReturnsInvalid covers the "none found" path.
func TestReferenceNextEventNoMatchReturnsInvalid(t *testing.T) {
	c := newTestControl(3, 1)
	ind := c.AllocateNextSlot()
	c.EventReady(ind, 5)
	logIdx, _ := c.logs.Register(identityForTest(1), c.DereferenceEventWithoutTransactionLogging)

	got := c.ReferenceNextEvent(5, logIdx, 6)
	if got.IsValid() {
		t.Fatalf("expected invalid indicator, ts=5 is not strictly between 5 and 6")
	}
}

// TestGetNumNewEvents counts readable slots newer than the reference time.
func TestGetNumNewEvents(t *testing.T) {
	c := newTestControl(5, 1)
	for ts := Timestamp(1); ts <= 5; ts++ {
		ind := c.AllocateNextSlot()
		c.EventReady(ind, ts)
	}
	if got := c.GetNumNewEvents(3); got != 2 {
		t.Fatalf("expected 2 events newer than ts=3, got %d", got)
	}
	if got := c.GetNumNewEvents(0); got != 5 {
		t.Fatalf("expected 5 events newer than ts=0, got %d", got)
	}
}

// TestRemoveAllocationsForWritingClearsAbandonedReservations exercises
// idempotent publisher-restart recovery.
func TestRemoveAllocationsForWritingClearsAbandonedReservations(t *testing.T) {
	c := newTestControl(3, 1)
	c.AllocateNextSlot() // left dangling InWriting, simulating a dead publisher

	c.RemoveAllocationsForWriting()
	for i := 0; i < c.MaxSampleSlots(); i++ {
		if !c.At(SlotIndex(i)).IsInvalid() {
			t.Fatalf("slot %d should be Invalid after recovery", i)
		}
	}

	// Idempotent: running it again must be a safe no-op.
	c.RemoveAllocationsForWriting()
	for i := 0; i < c.MaxSampleSlots(); i++ {
		if !c.At(SlotIndex(i)).IsInvalid() {
			t.Fatalf("slot %d should remain Invalid on second call", i)
		}
	}
}

// TestRemoveAllocationsForWritingTerminatesOnConcurrentWriter exercises the
// "no other writer may exist" precondition: if the CAS fails (simulated via
// a mock that forces failure), this is treated as a contract violation.
func TestRemoveAllocationsForWritingTerminatesOnConcurrentWriter(t *testing.T) {
	c := newTestControl(1, 1)
	c.AllocateNextSlot()
	mock := c.slots[0].(*mockAtomic64)
	mock.casFailures = 1

	terminated := withFatalCaptured(func() {
		c.RemoveAllocationsForWriting()
	})
	if !terminated {
		t.Fatalf("expected RemoveAllocationsForWriting to terminate on CAS failure")
	}
}

// TestAllocateExhaustsRetriesReturnsInvalid covers bounded failure when no
// free slot exists (every slot referenced, none can be reused).
func TestAllocateExhaustsRetriesReturnsInvalid(t *testing.T) {
	c := newTestControl(1, 1)
	ind := c.AllocateNextSlot()
	c.EventReady(ind, 1)
	logIdx, _ := c.logs.Register(identityForTest(1), c.DereferenceEventWithoutTransactionLogging)
	ref := c.ReferenceNextEvent(0, logIdx, MaxTimestamp)
	if !ref.IsValid() {
		t.Fatalf("expected successful reference")
	}

	got := c.AllocateNextSlot()
	if got.IsValid() {
		t.Fatalf("expected allocation to fail: the only slot is held by a live reference")
	}
}

// TestReferenceSpecificEventIncrementsRefcount covers.
func TestReferenceSpecificEventIncrementsRefcount(t *testing.T) {
	c := newTestControl(2, 1)
	ind := c.AllocateNextSlot()
	c.EventReady(ind, 1)
	logIdx, _ := c.logs.Register(identityForTest(1), c.DereferenceEventWithoutTransactionLogging)

	c.ReferenceSpecificEvent(ind.Index(), logIdx)
	if got := c.At(ind.Index()).refcount; got != 1 {
		t.Fatalf("expected refcount=1 after ReferenceSpecificEvent, got %d", got)
	}
}

// TestReferenceSpecificEventOverflowTerminates reproduces scenario 6 of
// mocking fetch_add's pre-add value at u32::MAX-1 must
// terminate the process.
func TestReferenceSpecificEventOverflowTerminates(t *testing.T) {
	c := newTestControl(1, 1)
	ind := c.AllocateNextSlot()
	c.EventReady(ind, 1)
	logIdx, _ := c.logs.Register(identityForTest(1), c.DereferenceEventWithoutTransactionLogging)

	mock := c.slots[ind.Index()].(*mockAtomic64)
	forced := uint64(refcountInWriting - 1)
	mock.forcedFetchAddBefore = &forced

	terminated := withFatalCaptured(func() {
		c.ReferenceSpecificEvent(ind.Index(), logIdx)
	})
	if !terminated {
		t.Fatalf("expected refcount overflow to terminate the process")
	}
}

// TestInvalidIndicatorAccessTerminates covers the "accessing an invalid
// indicator" contract violation.
func TestInvalidIndicatorAccessTerminates(t *testing.T) {
	terminated := withFatalCaptured(func() {
		_ = InvalidIndicator.Index()
	})
	if !terminated {
		t.Fatalf("expected accessing an invalid indicator's index to terminate")
	}
}

func identityForTest(pid int32) translog.SubscriberID {
	return translog.SubscriberID{PID: pid, Generation: 1}
}
