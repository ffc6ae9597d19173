// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ring provides the bounded, lock-free hand-off queues used between
// pipeline stages (SPSC[T]) and between a pool's thread-local caches and its
// shared page stack (MPMCIndirect).
//
// Both operations are non-blocking: Enqueue returns ErrWouldBlock when full,
// Dequeue returns ErrWouldBlock when empty. Callers that must wait use the
// Backoff helper in backoff.go rather than spinning unconditionally, matching
// the spec's "spin/yield on contention, bounded iterations" policy.
package ring

import "unsafe"

// Queue is the combined producer-consumer interface for a FIFO queue of T.
//
// The interface intentionally excludes length because accurate counts in
// lock-free algorithms require expensive cross-core synchronization; callers
// that need an approximate fill ratio for statistics call the concrete
// queue's own Len method (e.g. SPSC.Len) instead.
type Queue[T any] interface {
	Producer[T]
	Consumer[T]
	Cap() int
}

// Producer enqueues elements by pointer (copied into the queue's buffer).
type Producer[T any] interface {
	// Enqueue returns nil on success, ErrWouldBlock if the queue is full.
	Enqueue(elem *T) error
}

// Consumer dequeues elements by value.
type Consumer[T any] interface {
	// Dequeue returns (zero-value, ErrWouldBlock) if the queue is empty.
	Dequeue() (T, error)
}

// QueueIndirect is the combined interface for indirect (uintptr) queues,
// used by internal/pool to pass page handles instead of full objects.
type QueueIndirect interface {
	ProducerIndirect
	ConsumerIndirect
	Cap() int
}

// ProducerIndirect enqueues uintptr values (non-blocking).
type ProducerIndirect interface {
	Enqueue(elem uintptr) error
}

// ConsumerIndirect dequeues uintptr values (non-blocking).
type ConsumerIndirect interface {
	Dequeue() (uintptr, error)
}

// Drainer signals that no more enqueues will occur so a consumer can drain
// remaining items without threshold blocking. FAA-based queues (MPMCIndirect)
// implement this; SPSC does not need it (no threshold mechanism).
type Drainer interface {
	Drain()
}

// ptrSize is the size of a pointer in bytes.
const ptrSize = int(unsafe.Sizeof(uintptr(0)))

// pad is cache line padding to prevent false sharing.
type pad [64]byte
