// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

import "code.hybscloud.com/atomix"

// Counters holds the process-wide diagnostic atomics tracking allocation
// and reference contention. They are non-functional: no algorithm ever
// branches on their value, so ordinary acquire-release atomics are used
// rather than the mockable atomic64 interface the control algorithms use.
type Counters struct {
	numAllocMisses  atomix.Uint64
	numAllocRetries atomix.Uint64
	numRefMisses    atomix.Uint64
	numRefRetries   atomix.Uint64
}

// globalCounters is the process-wide instance every EventDataControl
// reports into.
var globalCounters Counters

func (c *Counters) incAllocMiss()  { c.numAllocMisses.AddAcqRel(1) }
func (c *Counters) incAllocRetry() { c.numAllocRetries.AddAcqRel(1) }
func (c *Counters) incRefMiss()    { c.numRefMisses.AddAcqRel(1) }
func (c *Counters) incRefRetry()   { c.numRefRetries.AddAcqRel(1) }

// PerformanceSnapshot is a point-in-time copy of the diagnostic counters.
type PerformanceSnapshot struct {
	NumAllocMisses  uint64
	NumAllocRetries uint64
	NumRefMisses    uint64
	NumRefRetries   uint64
}

// DumpPerformanceCounters returns a snapshot of the process-wide
// diagnostic counters. For test and debugging use only.
func DumpPerformanceCounters() PerformanceSnapshot {
	return PerformanceSnapshot{
		NumAllocMisses:  globalCounters.numAllocMisses.LoadRelaxed(),
		NumAllocRetries: globalCounters.numAllocRetries.LoadRelaxed(),
		NumRefMisses:    globalCounters.numRefMisses.LoadRelaxed(),
		NumRefRetries:   globalCounters.numRefRetries.LoadRelaxed(),
	}
}

// ResetPerformanceCounters zeroes every diagnostic counter.
func ResetPerformanceCounters() {
	globalCounters.numAllocMisses.StoreRelaxed(0)
	globalCounters.numAllocRetries.StoreRelaxed(0)
	globalCounters.numRefMisses.StoreRelaxed(0)
	globalCounters.numRefRetries.StoreRelaxed(0)
}
