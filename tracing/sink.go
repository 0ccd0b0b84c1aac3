// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tracing provides the event-slot tracing collaborator: an
// interface callers emit control-plane transitions to (eventctl itself
// never calls a Sink; the caller emits events around its own eventctl
// calls), and two implementations — a no-op sink
// for production builds that don't care, and a bounded async queue for
// tests and debugging builds that want to inspect the sequence of events
// without slowing down the hot path.
package tracing

import "code.hybscloud.com/lola/eventctl"

// Event describes a single control-plane transition worth tracing.
type Event struct {
	Kind  Kind
	Slot  eventctl.SlotIndex
	Stamp eventctl.Timestamp
}

// Kind enumerates the traceable transitions.
type Kind uint8

const (
	KindAllocate Kind = iota
	KindPublish
	KindDiscard
	KindReference
	KindDereference
	KindRollback
)

func (k Kind) String() string {
	switch k {
	case KindAllocate:
		return "allocate"
	case KindPublish:
		return "publish"
	case KindDiscard:
		return "discard"
	case KindReference:
		return "reference"
	case KindDereference:
		return "dereference"
	case KindRollback:
		return "rollback"
	default:
		return "unknown"
	}
}

// Sink receives trace events from the control plane. Emit must never
// block the hot path for long: implementations that need to do I/O queue
// the event and return immediately.
type Sink interface {
	Emit(ev Event)
}

// Noop discards every event. The zero value is ready to use, for callers
// that don't want tracing.
type Noop struct{}

func (Noop) Emit(Event) {}
