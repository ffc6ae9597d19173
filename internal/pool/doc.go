// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pool implements the packet-buffer pool (C1): a thread-safe free
// list of fixed-capacity reusable objects that avoids a per-packet
// allocation on the capture fast path.
//
// Slots are pre-allocated in fixed-size pages (default 100). Each pipeline
// stage that allocates slots (the read stage, and the defrag stage for
// reassembled datagrams) holds its own Acquirer, which keeps a local cache
// of individual slots and only touches the shared free-page
// stack (internal/ring.MPMCIndirect) when its cache runs dry, refilling one
// whole page at a time. Release is safe from any goroutine: every pipeline
// stage that can drop a packet (ring-full, defrag discarding a malformed
// fragment, and so on) returns the slot directly. A page's release counter
// is tracked independently of the Acquirer's local cache, so the page goes
// back onto the shared stack as a unit exactly once all of its slots have
// come home, regardless of which stage released the last one.
//
// This amortizes the page stack's atomic operations to roughly one push and
// one pop per page, i.e. 1/pageSize per slot, rather than one CAS per
// packet.
package pool
