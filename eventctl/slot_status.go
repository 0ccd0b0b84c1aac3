// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

import "math"

// Timestamp is the publisher's strictly monotonic publish counter.
type Timestamp = uint32

// MaxTimestamp is the highest representable Timestamp, used as the default
// (exclusive) upper bound when polling for "any newer event".
const MaxTimestamp Timestamp = math.MaxUint32

// refcountInWriting is the sentinel lower-32-bit value that marks a slot
// reserved for writing. No legitimate refcount ever reaches it: overflow
// of the real reference count is a fatal condition (see errors.go).
const refcountInWriting = math.MaxUint32

// slotStatus is the decoded view of a 64-bit status word: upper 32 bits
// are the timestamp, lower 32 bits are the reference count. The zero value
// is the Invalid sentinel.
type slotStatus struct {
	timestamp Timestamp
	refcount  uint32
}

func decodeStatus(word uint64) slotStatus {
	return slotStatus{
		timestamp: Timestamp(word >> 32),
		refcount:  uint32(word),
	}
}

func (s slotStatus) encode() uint64 {
	return uint64(s.timestamp)<<32 | uint64(s.refcount)
}

// IsInvalid reports whether the slot has never been written, or was
// invalidated after a failed allocation.
func (s slotStatus) IsInvalid() bool {
	return s.timestamp == 0 && s.refcount == 0
}

// IsInWriting reports whether the slot is reserved by a publisher that has
// not yet called EventReady.
func (s slotStatus) IsInWriting() bool {
	return s.refcount == refcountInWriting && s.timestamp == 0
}

// IsUsed reports whether the slot currently has live readers or is being
// written.
func (s slotStatus) IsUsed() bool {
	return s.refcount != 0 || s.IsInWriting()
}

// TimestampBetween reports whether the slot holds a readable event whose
// timestamp is strictly between lo and hi (both exclusive).
func (s slotStatus) TimestampBetween(lo, hi Timestamp) bool {
	if s.IsInvalid() || s.IsInWriting() {
		return false
	}
	return s.timestamp > lo && s.timestamp < hi
}

// invalidWord and inWritingWord are the two encoded sentinels.
const invalidWord uint64 = 0

var inWritingWord = slotStatus{timestamp: 0, refcount: refcountInWriting}.encode()
