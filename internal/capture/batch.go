// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

// DigestSize is the content digest width carried by a hand-off entry once
// md2 has completed it (spec §3: "16-byte content digest").
const DigestSize = 16

// Entry is one pipeline hand-off entry (spec §3): a slot reference plus the
// link-layer offset into it, and a content digest that is only meaningful
// once the md2 stage has run.
type Entry struct {
	Slot       *Slot
	LinkOffset int
	Digest     [DigestSize]byte
}

// BatchSize bounds the number of entries amortized into one ring push/pop,
// per spec §3's "Batches amortize ring push/pop cost."
const BatchSize = 32

// Batch is a pipeline hand-off entry batch (spec §3). Count tracks how many
// of Entries are valid; a Batch is pushed to its ring exactly once full, or
// flushed early by the producing stage once its input goes idle.
type Batch struct {
	Entries [BatchSize]Entry
	Count   int
}

// Full reports whether the batch has no remaining room.
func (b *Batch) Full() bool { return b.Count >= BatchSize }

// Add appends e to the batch. Caller must check Full first.
func (b *Batch) Add(e Entry) {
	b.Entries[b.Count] = e
	b.Count++
}

// Reset clears the batch for reuse by its producer.
func (b *Batch) Reset() { b.Count = 0 }
