// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tracing

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// QueueSink is a lock-free multi-producer single-consumer ring buffer of
// Events with drop-oldest semantics. Every control-plane goroutine that
// calls Emit is a producer; one draining goroutine (typically a
// debug/test harness) calls Drain to pull events out in order. Unlike a
// capacity-bounded work queue, Emit never rejects and never blocks: once
// the ring is full, the next Emit simply overwrites whichever unread
// event is oldest. Tracing is diagnostic, not load-bearing, so a stale
// event silently clobbered under load beats the hot path ever stalling
// on a slow or absent consumer.
type QueueSink struct {
	write  atomix.Uint64
	buffer []traceSlot
	mask   uint64
	read   uint64 // consumer-owned; no synchronization, single consumer only
}

// traceSlot's seq records which write position currently occupies it, so
// Drain can tell a not-yet-published slot from one a later Emit has
// already overwritten.
type traceSlot struct {
	seq  atomix.Uint64
	data Event
}

const emptySeq = ^uint64(0)

// NewQueueSink creates a queue sink with room for capacity events,
// rounded up to the next power of two.
func NewQueueSink(capacity int) *QueueSink {
	if capacity < 2 {
		capacity = 2
	}
	n := uint64(roundToPow2(capacity))
	q := &QueueSink{
		buffer: make([]traceSlot, n),
		mask:   n - 1,
	}
	for i := range q.buffer {
		q.buffer[i].seq.StoreRelaxed(emptySeq)
	}
	return q
}

// Emit claims the next write position and publishes ev into it,
// overwriting whatever event previously lived at that position modulo
// the ring's capacity.
func (q *QueueSink) Emit(ev Event) {
	pos := q.write.AddAcqRel(1) - 1
	slot := &q.buffer[pos&q.mask]
	slot.data = ev
	slot.seq.StoreRelease(pos)
}

// Drain removes and returns the oldest event this consumer has not yet
// seen. ok is false if the consumer has caught up to every event
// published so far. If producers have overwritten every event the
// consumer hadn't read yet, Drain skips ahead to the oldest one still
// present rather than replaying clobbered data. Single-consumer only.
func (q *QueueSink) Drain() (ev Event, ok bool) {
	sw := spin.Wait{}
	for {
		write := q.write.LoadAcquire()
		if q.read >= write {
			return Event{}, false
		}
		if write-q.read > uint64(len(q.buffer)) {
			q.read = write - uint64(len(q.buffer))
		}

		slot := &q.buffer[q.read&q.mask]
		seq := slot.seq.LoadAcquire()
		switch {
		case seq == q.read:
			ev = slot.data
			q.read++
			return ev, true
		case seq == emptySeq || int64(seq) < int64(q.read):
			// The producer has claimed this position but not yet published
			// into it. Brief race, not a real gap; retry.
			sw.Once()
		default:
			// seq > q.read: a later Emit already overwrote this slot before
			// we could read it. Catch up to where it left off.
			q.read = seq
		}
	}
}

// DrainAll pulls every currently queued event, oldest first.
func (q *QueueSink) DrainAll() []Event {
	var out []Event
	for {
		ev, ok := q.Drain()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func roundToPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
