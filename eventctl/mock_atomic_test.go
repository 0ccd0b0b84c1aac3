// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

// mockAtomic64 substitutes for realAtomic64 in tests, letting us force CAS
// failures and forge fetch-add return values without real concurrency.
// This is the Go expression of the binding's AtomicIndirector design note
//: EventDataControl is built on the atomic64 interface precisely
// so production code and this mock can be swapped via a factory function.
type mockAtomic64 struct {
	val uint64

	// casFailures, if > 0, makes the next N CompareAndSwapAcqRel calls
	// fail regardless of whether old matches, then reverts to real CAS
	// semantics.
	casFailures int

	// forcedFetchAddBefore, if non-nil, is returned as the pre-add value
	// on the next FetchAddAcqRel call and then cleared.
	forcedFetchAddBefore *uint64
}

func newMockAtomic64(v uint64) atomic64 {
	return &mockAtomic64{val: v}
}

func (m *mockAtomic64) LoadAcquire() uint64   { return m.val }
func (m *mockAtomic64) LoadRelaxed() uint64   { return m.val }
func (m *mockAtomic64) StoreRelease(v uint64) { m.val = v }
func (m *mockAtomic64) StoreRelaxed(v uint64) { m.val = v }

func (m *mockAtomic64) CompareAndSwapAcqRel(old, new uint64) bool {
	if m.casFailures > 0 {
		m.casFailures--
		return false
	}
	if m.val != old {
		return false
	}
	m.val = new
	return true
}

func (m *mockAtomic64) FetchAddAcqRel(delta uint64) uint64 {
	if m.forcedFetchAddBefore != nil {
		before := *m.forcedFetchAddBefore
		m.forcedFetchAddBefore = nil
		m.val = before + delta
		return before
	}
	before := m.val
	m.val += delta
	return before
}
