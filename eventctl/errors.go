// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

import (
	"code.hybscloud.com/iox"

	"code.hybscloud.com/lola/fatal"
)

// ErrRetriesExhausted is the error value for retry exhaustion: a bounded
// retry loop giving up without finding/claiming a slot. AllocateNextSlot
// and ReferenceNextEvent do not return it; they report that case with an
// invalid Indicator. This is resource exhaustion, not a contract
// violation, so it is an alias of iox.ErrWouldBlock, the "try again
// later" sentinel.
var ErrRetriesExhausted = iox.ErrWouldBlock

// IsRetriesExhausted reports whether err is the retry-exhaustion signal.
func IsRetriesExhausted(err error) bool {
	return iox.IsWouldBlock(err)
}

func terminateInvalidIndicator() {
	fatal.Terminate("eventctl: access through invalid slot indicator")
}

func terminateRefcountOverflow(slot SlotIndex) {
	fatal.Terminate("eventctl: reference count overflow, state word integrity lost", "slot", slot)
}

func terminateBoundsViolation(index int, max int) {
	fatal.Terminate("eventctl: control array index out of bounds", "index", index, "max_slots", max)
}

func terminateConcurrentWriterViolation(slot SlotIndex) {
	fatal.Terminate("eventctl: RemoveAllocationsForWriting observed a concurrent writer", "slot", slot)
}

func terminateCompositeConstruction() {
	fatal.Terminate("eventctl: composite constructed without a QM control")
}

func terminateDoubleDrop() {
	fatal.Terminate("eventctl: sample pointer double-dropped")
}
