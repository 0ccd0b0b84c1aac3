// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPerformanceSnapshotTracksRetriesAndMisses(t *testing.T) {
	ResetPerformanceCounters()
	defer ResetPerformanceCounters()

	globalCounters.incAllocMiss()
	globalCounters.incAllocRetry()
	globalCounters.incAllocRetry()
	globalCounters.incRefMiss()
	globalCounters.incRefRetry()

	got := DumpPerformanceCounters()
	want := PerformanceSnapshot{
		NumAllocMisses:  1,
		NumAllocRetries: 2,
		NumRefMisses:    1,
		NumRefRetries:   1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("performance snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestResetPerformanceCountersZeroesSnapshot(t *testing.T) {
	globalCounters.incAllocMiss()
	globalCounters.incRefRetry()

	ResetPerformanceCounters()

	got := DumpPerformanceCounters()
	if diff := cmp.Diff(PerformanceSnapshot{}, got); diff != "" {
		t.Fatalf("expected a zeroed snapshot after reset (-want +got):\n%s", diff)
	}
}
