// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package errs defines the error kinds surfaced by the capture core. Each
// kind maps to exactly one counter in internal/stats and one policy: retry,
// drop-and-count, terminate the owning pipeline, or close and let the peer
// reconnect. No error kind ever crosses a goroutine boundary as a panic —
// every worker loop handles its own kinds and keeps running.
package errs

import "errors"

var (
	// ErrCaptureTransient: driver returned a soft read error. A read
	// timeout is reported as capture.ErrTimeout instead, not as this kind.
	// Policy: count, retry next iteration; not logged.
	ErrCaptureTransient = errors.New("errs: capture transient error")

	// ErrCaptureFatal: device closed or permission revoked.
	// Policy: terminate that interface's pipeline.
	ErrCaptureFatal = errors.New("errs: capture fatal error")

	// ErrPoolExhausted: no packet slot available.
	// Policy: drop packet, count.
	ErrPoolExhausted = errors.New("errs: packet pool exhausted")

	// ErrRingFull: downstream stage ring is full.
	// Policy: drop packet at producer, count.
	ErrRingFull = errors.New("errs: ring full")

	// ErrMemoryCeiling: block store memory ceiling exceeded and disk spill
	// is disabled. Policy: drop block, count, return to the pusher; any
	// log line is the pusher's own and is not rate-limited.
	ErrMemoryCeiling = errors.New("errs: memory ceiling exceeded")

	// ErrDiskFull: disk spill refused by the free-space check.
	// Policy: drop block, count, log each refusal (not rate-limited).
	ErrDiskFull = errors.New("errs: disk spill refused, free space below minimum")

	// ErrDiskIO: a disk write, read, flush, or unlink failed.
	// Policy: count and continue. A failed spill is returned to the pusher;
	// a failed read ends that Pop with no block. The owning file store is
	// not marked for destruction.
	ErrDiskIO = errors.New("errs: disk i/o error")

	// ErrMirrorConnect: mirror sender could not reach its peer.
	// Policy: backoff and retry, count.
	ErrMirrorConnect = errors.New("errs: mirror peer unreachable")

	// ErrMirrorIO: a mid-stream mirror read or write failed.
	// Policy: close the connection, reader exits, peer may reconnect.
	ErrMirrorIO = errors.New("errs: mirror connection i/o error")

	// ErrCorrupt: a block failed its codec integrity checks.
	// Policy: drop block, count.
	ErrCorrupt = errors.New("errs: block failed codec checks")
)
