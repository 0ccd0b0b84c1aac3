// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package translog

import "code.hybscloud.com/lola/fatal"

// Index is a stable index into a Set, returned by Register and required by
// every subsequent Log.Begin/Commit/Abort call made through At.
type Index int

// InvalidIndex is returned when no log slot is available.
const InvalidIndex Index = -1

// Set is the fixed-capacity collection of per-subscriber transaction logs
// owned by one event-data-control. Capacity is
// max_subscribers, configured at construction.
type Set struct {
	logs     []Log
	maxSlots int
}

// NewSet allocates a transaction log set with room for maxSubscribers
// concurrently-subscribed consumers, each log sized to track maxSlots
// control-array entries.
func NewSet(maxSubscribers, maxSlots int) *Set {
	s := &Set{
		logs:     make([]Log, maxSubscribers),
		maxSlots: maxSlots,
	}
	for i := range s.logs {
		s.logs[i].slots = make([]State, maxSlots)
	}
	return s
}

// Register finds or creates the log entry for identity and returns its
// stable index.
//
// If a log already registered under this identity carries needs_rollback,
// Rollback runs before the index is returned: Register never reuses a log
// without first rolling it back. The returned log then has needs_rollback
// set again, because it belongs to a live subscription until a clean
// Unregister.
//
// One log per identity is enforced by construction: the linear scan below never returns a
// second index for an identity already bound to one.
func (s *Set) Register(identity SubscriberID, deref DereferenceFunc) (Index, bool) {
	for i := range s.logs {
		if s.logs[i].inUse && s.logs[i].identity == identity {
			// Reconnect under the same identity: if the prior owner died
			// mid-transaction, needs_rollback is still set from last time.
			if s.logs[i].NeedsRollback() {
				s.logs[i].Rollback(deref)
			}
			s.logs[i].BeginSubscribe()
			s.logs[i].CommitSubscribe()
			s.logs[i].setNeedsRollback(true)
			return Index(i), true
		}
	}
	for i := range s.logs {
		if !s.logs[i].inUse {
			s.logs[i] = Log{identity: identity, inUse: true, slots: make([]State, s.maxSlots)}
			s.logs[i].BeginSubscribe()
			s.logs[i].CommitSubscribe()
			// Set last: a live, committed subscription always needs
			// rollback if the process disappears before a clean
			// unsubscribe clears it.
			s.logs[i].setNeedsRollback(true)
			return Index(i), true
		}
	}
	return InvalidIndex, false
}

// Unregister releases identity's log entry on clean unsubscribe. Any
// still-committed increments at this point would be a protocol violation
// by the caller (it must dereference everything before unsubscribing), so
// Unregister asserts the log is quiescent rather than silently rolling it
// back.
func (s *Set) Unregister(idx Index) {
	l := s.at(idx)
	l.BeginUnsubscribe()
	for i, st := range l.slots {
		if st != NotInProgress {
			fatal.Terminate("translog: unsubscribe with an in-flight transaction",
				"slot", i, "state", st.String())
		}
	}
	l.CompleteUnsubscribe()
	*l = Log{slots: l.slots}
}

// At returns the log at idx for the caller to drive its per-slot state
// machine directly (Begin/Commit/Abort).
func (s *Set) At(idx Index) *Log {
	return s.at(idx)
}

func (s *Set) at(idx Index) *Log {
	if idx < 0 || int(idx) >= len(s.logs) {
		fatal.Terminate("translog: index out of range", "index", idx, "max_subscribers", len(s.logs))
	}
	return &s.logs[idx]
}

// ForEachNeedingRollback calls fn for every registered log whose
// needs_rollback flag is set, in index order. Used by publisher-restart
// recovery to roll back logs belonging to dead subscribers.
func (s *Set) ForEachNeedingRollback(fn func(idx Index, l *Log)) {
	for i := range s.logs {
		if s.logs[i].inUse && s.logs[i].NeedsRollback() {
			fn(Index(i), &s.logs[i])
		}
	}
}

// MarkNeedsRollback flags idx's log as needing rollback. Exercised by
// tests and by the subscriber-side crash-simulation harness to mark a
// log as abandoned without tearing down the whole Set.
func (s *Set) MarkNeedsRollback(idx Index) {
	s.at(idx).setNeedsRollback(true)
}
