// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventctl

import "code.hybscloud.com/lola/fatal"

// exitSentinel is panicked by the test ExitFunc substitute so a Terminate
// call site can be observed with recover() instead of killing the test
// binary.
type exitSentinel struct{ code int }

// withFatalCaptured swaps fatal.ExitFunc so a call to fatal.Terminate
// inside fn panics with exitSentinel instead of exiting the process. It
// reports whether Terminate was invoked.
func withFatalCaptured(fn func()) (terminated bool) {
	prev := fatal.ExitFunc
	fatal.ExitFunc = func(code int) { panic(exitSentinel{code: code}) }
	defer func() {
		fatal.ExitFunc = prev
		if r := recover(); r != nil {
			if _, ok := r.(exitSentinel); ok {
				terminated = true
				return
			}
			panic(r)
		}
	}()
	fn()
	return false
}
