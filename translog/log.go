// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package translog implements the per-subscriber transaction log that lets
// a surviving party roll back partially completed slot reference-count
// operations after a subscriber crashes mid-transaction.
package translog

import (
	"fmt"

	"code.hybscloud.com/atomix"

	"code.hybscloud.com/lola/fatal"
)

// SubscriberID is the opaque, equality-comparable identity a consumer
// process carries across reconnects. This implementation concretely packs
// a PID and a restart generation so a reconnecting subscriber can find its
// old log entry by PID while a crashed-and-reused PID from a different
// generation cannot accidentally inherit someone else's log.
type SubscriberID struct {
	PID        int32
	Generation uint32
}

// State is one per-slot entry in the transaction log's state machine,
// tracking how far an in-flight reference-count operation has progressed
// so a crash mid-operation can be rolled back to a consistent point.
type State uint8

const (
	NotInProgress State = iota
	IncrementStart
	IncrementCommitted
	DereferenceStart
	SubscribeStart
	SubscribeCommitted
	UnsubscribeStart
)

func (s State) String() string {
	switch s {
	case NotInProgress:
		return "NotInProgress"
	case IncrementStart:
		return "IncrementStart"
	case IncrementCommitted:
		return "IncrementCommitted"
	case DereferenceStart:
		return "DereferenceStart"
	case SubscribeStart:
		return "SubscribeStart"
	case SubscribeCommitted:
		return "SubscribeCommitted"
	case UnsubscribeStart:
		return "UnsubscribeStart"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// DereferenceFunc rolls a single slot's reference count back by one
// without touching any transaction log. It is implemented by
// eventctl.EventDataControl.DereferenceEventWithoutTransactionLogging; the
// function-typed seam avoids an import cycle between translog and
// eventctl (eventctl owns a translog.Set, translog needs to call back into
// eventctl during rollback).
type DereferenceFunc func(slotIndex uint16)

// Log is one (subscriber-identity, event) transaction journal. Its slot
// capacity equals the owning control array's slot count.
type Log struct {
	identity      SubscriberID
	inUse         bool
	needsRollback atomix.Bool
	subscribeState State
	slots          []State
}

func newLog(maxSlots int) *Log {
	return &Log{slots: make([]State, maxSlots)}
}

// NeedsRollback reports whether this log was left in a state that must be
// rolled back before reuse (set at registration, cleared only
// after a successful rollback or a clean unsubscribe).
func (l *Log) NeedsRollback() bool { return l.needsRollback.LoadAcquire() }

func (l *Log) setNeedsRollback(v bool) { l.needsRollback.StoreRelease(v) }

// Identity returns the subscriber identity this log entry belongs to.
func (l *Log) Identity() SubscriberID { return l.identity }

// Begin starts an increment or dereference transaction on slot i.
// A begin with no matching prior commit/abort terminates
// the process: this indicates the binding layer above translog has a bug,
// since well-formed callers always pair Begin with Commit or Abort.
func (l *Log) Begin(i uint16, start State) {
	cur := l.slots[i]
	if cur != NotInProgress && !(cur == IncrementCommitted && start == DereferenceStart) {
		fatal.Terminate("translog: ReferenceTransactionBegin with a transaction already in flight",
			"slot", i, "current_state", cur.String(), "requested", start.String())
	}
	l.slots[i] = start
}

// Commit advances slot i's in-flight transaction to its committed state.
func (l *Log) Commit(i uint16, committed State) {
	l.slots[i] = committed
}

// Abort reverts slot i to NotInProgress after a failed CAS attempt; the
// increment never took effect, so there is nothing to undo.
func (l *Log) Abort(i uint16) {
	l.slots[i] = NotInProgress
}

// BeginSubscribe/CommitSubscribe/BeginUnsubscribe drive the subscribe
// bookkeeping half of the state machine.
func (l *Log) BeginSubscribe() { l.subscribeState = SubscribeStart }
func (l *Log) CommitSubscribe() { l.subscribeState = SubscribeCommitted }
func (l *Log) BeginUnsubscribe() { l.subscribeState = UnsubscribeStart }
func (l *Log) CompleteUnsubscribe() { l.subscribeState = NotInProgress }

// SubscribeState reports the current subscribe-bookkeeping state.
func (l *Log) SubscribeState() State { return l.subscribeState }

// Rollback undoes every in-flight or committed-but-unreleased operation
// recorded in the log
//
//   - IncrementCommitted or DereferenceStart: the slot's refcount still
//     reflects a reference nobody will ever release (the subscriber died
//     holding it, or died mid-dereference); deref un-refs it via the
//     logging-free path and the entry resets to NotInProgress.
//   - IncrementStart: the increment never committed, nothing to undo.
//   - SubscribeCommitted with a dead subscriber: handled by the caller,
//     which is responsible for subscriber-count bookkeeping; Rollback only
//     clears the bookkeeping state here.
//
// Rollback is idempotent: every branch transitions strictly toward
// NotInProgress, so a second call observes only already-settled states and
// is a no-op.
func (l *Log) Rollback(deref DereferenceFunc) {
	for i, st := range l.slots {
		switch st {
		case IncrementCommitted, DereferenceStart:
			deref(uint16(i))
			l.slots[i] = NotInProgress
		case IncrementStart:
			l.slots[i] = NotInProgress
		default:
			// NotInProgress: nothing recorded.
		}
	}
	if l.subscribeState == SubscribeCommitted || l.subscribeState == UnsubscribeStart {
		l.subscribeState = NotInProgress
	}
	l.setNeedsRollback(false)
}
