// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ring provides the lock-free queues that connect pipeline stages.
//
// Two queue families are used by the rest of this module:
//
//   - SPSC[T]: single-producer single-consumer Lamport ring buffer. Every
//     hand-off between adjacent capture pipeline stages (read→defrag→md1→
//     md2→dedup) and the sealed-block hand-off from an interface pipeline to
//     the block writer is an SPSC[T].
//   - MPMCIndirect: FAA-based SCQ queue carrying uintptr page handles, used
//     as the shared free-page stack beneath internal/pool's per-stage local
//     caches.
//
// # Usage
//
//	q := ring.NewSPSC[capture.Batch](1024)
//
//	go func() { // producer
//	    b := ring.Backoff{}
//	    for {
//	        if err := q.Enqueue(&batch); err != nil {
//	            b.Wait()
//	            continue
//	        }
//	        b.Reset()
//	    }
//	}()
//
//	go func() { // consumer
//	    b := ring.Backoff{}
//	    for {
//	        batch, err := q.Dequeue()
//	        if err != nil {
//	            b.Wait()
//	            continue
//	        }
//	        b.Reset()
//	        process(batch)
//	    }
//	}()
//
// # Error handling
//
// Both queue families return [ErrWouldBlock] when an operation cannot
// proceed immediately (full on Enqueue, empty on Dequeue). This is a
// control-flow signal, not a failure — callers retry with the Backoff
// helper in backoff.go, which implements the spec's "spin, then yield
// after a bounded number of iterations" policy rather than spinning
// forever or blocking on a condition variable.
//
// # Capacity
//
// Capacity rounds up to the next power of 2; minimum is 2. SPSC uses n
// physical slots, MPMCIndirect uses 2n (FAA-based algorithms trade memory
// for contention scalability).
//
// # Race detection
//
// Go's race detector tracks explicit synchronization (mutex, channel,
// WaitGroup), not the acquire-release atomics these queues use to protect
// non-atomic fields. RaceEnabled (race.go / race_off.go) lets a test
// shorten iteration counts when the detector's overhead would make a
// stress test too slow, rather than skipping coverage outright.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors,
// [code.hybscloud.com/atomix] for atomic primitives with explicit memory
// ordering, and [code.hybscloud.com/spin] for CPU pause instructions during
// the bounded retry loop inside MPMCIndirect.
package ring
