// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fatal is the single chokepoint for "terminate the process"
// contract violations: refcount overflow, bounds violations, double-drop
// of a sample pointer, and any other condition that indicates memory
// corruption or a configuration bug rather than a recoverable error.
//
// Continuing after one of these conditions risks corrupting state shared
// across process boundaries, so it is never surfaced as a Go error value;
// callers are expected to have no code path after Terminate is invoked.
package fatal

import (
	"os"

	"github.com/rs/zerolog/log"
)

// ExitFunc is called by Terminate after logging. It defaults to os.Exit;
// callers that need to exercise a Terminate call site in a test without
// killing the test binary may swap it out for the duration of that test
// and restore it afterward.
var ExitFunc = os.Exit

// Terminate logs msg with the given structured fields at Error level and
// terminates the process with a non-zero status. kv is an alternating
// key/value list, in the style of zerolog's Fields.
func Terminate(msg string, kv ...any) {
	ev := log.Error()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
	ExitFunc(2)
}
