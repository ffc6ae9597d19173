// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring

import (
	"runtime"

	"code.hybscloud.com/spin"
)

// spinLimit bounds how many CPU-pause spins a Backoff performs before
// falling back to runtime.Gosched. Matches spec §5: "threads yield on spin
// contention after a bounded number of iterations" rather than spinning
// indefinitely or blocking on a condition variable.
const spinLimit = 32

// Backoff implements the pipeline's spin/yield retry policy for a ring
// returning ErrWouldBlock: pause-instruction spins first (cheap, no
// scheduler involvement), then cooperative yields once contention looks
// sustained. Reset after each successful operation.
type Backoff struct {
	spins int
}

// Wait performs one step of the backoff policy.
func (b *Backoff) Wait() {
	if b.spins < spinLimit {
		spin.Wait{}.Once()
		b.spins++
		return
	}
	runtime.Gosched()
}

// Reset clears accumulated spin count after a successful operation.
func (b *Backoff) Reset() {
	b.spins = 0
}
