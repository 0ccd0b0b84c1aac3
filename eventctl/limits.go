// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

// Retry bounds from. Each bounds a wait-free-bounded loop: the
// algorithm always terminates, either with a result or with the
// resource-exhaustion signal.
const (
	MaxAllocateRetries      = 100
	MaxReferenceRetries     = 100
	MaxMultiAllocateRetries = 100
)

// MaxSlotsLimit is the largest control-array length representable by
// SlotIndex.
const MaxSlotsLimit = 65535
