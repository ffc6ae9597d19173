// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import "errors"

// ErrExhausted is returned by Acquire when both the caller's local cache
// and the shared page stack are empty. The caller must cope — drop the
// packet it was about to capture, or whatever policy the stage implements —
// rather than block waiting for a slot to free up.
var ErrExhausted = errors.New("pool: exhausted")
