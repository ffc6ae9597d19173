// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/pcapflow/internal/ring"
)

// Pool is a fixed-capacity free list of *T, organized into pages of
// Options.PageSize slots. One Pool is constructed per interface pipeline;
// each stage that allocates slots holds its own Acquirer over it, and
// Release is called by any stage in the same pipeline that needs to return
// a slot.
type Pool[T any] struct {
	shared   *ring.MPMCIndirect
	pages    []*page[T]
	pageSize int
}

type page[T any] struct {
	slots []T
	freed atomix.Int64
}

// New creates a Pool sized to hold approximately capacity slots, rounded up
// to a whole number of pages.
func New[T any](capacity int, opts Options) *Pool[T] {
	opts = opts.withDefaults()

	numPages := (capacity + opts.PageSize - 1) / opts.PageSize
	if numPages < 1 {
		numPages = 1
	}

	p := &Pool[T]{
		pages:    make([]*page[T], numPages),
		pageSize: opts.PageSize,
	}

	sharedCap := numPages
	if sharedCap < 2 {
		sharedCap = 2
	}
	p.shared = ring.NewMPMCIndirect(sharedCap)

	for i := range p.pages {
		p.pages[i] = &page[T]{slots: make([]T, opts.PageSize)}
		if err := p.shared.Enqueue(uintptr(i)); err != nil {
			panic("pool: page stack undersized for page count")
		}
	}

	return p
}

// Init calls fn once for every slot in the pool, before any of them are
// handed out by Acquire. Used to pre-allocate a slot's fixed-capacity
// fields (e.g. capture.Slot's byte buffer) so the capture fast path never
// allocates per packet. Not safe to call concurrently with Acquire/Release;
// call it once, immediately after New.
func (p *Pool[T]) Init(fn func(*T)) {
	for _, pg := range p.pages {
		for i := range pg.slots {
			fn(&pg.slots[i])
		}
	}
}

// Acquirer returns a new, empty local cache drawing from this Pool.
func (p *Pool[T]) Acquirer() *Acquirer[T] {
	return &Acquirer[T]{pool: p, local: make([]*T, 0, p.pageSize)}
}

// Release returns a slot to the pool. Safe to call concurrently, and from a
// goroutine other than the one that acquired it — this is how a stage that
// drops a packet (ring full, malformed fragment, and so on) returns the
// slot without routing back through the Acquirer's local cache.
func (p *Pool[T]) Release(slot *T) {
	idx := p.locate(slot)
	pg := p.pages[idx]
	if pg.freed.AddAcqRel(1) == int64(p.pageSize) {
		pg.freed.StoreRelaxed(0)
		// Capacity is at least the page count, so Enqueue cannot fail while
		// each page is on the stack at most once; a failure here means a
		// slot was released twice — a programmer error we let bubble up
		// rather than mask.
		if err := p.shared.Enqueue(uintptr(idx)); err != nil {
			panic("pool: page double-released")
		}
	}
}

// locate finds which page owns slot by address range. Pool instances hold a
// modest number of pages (capacity/PageSize), so a linear scan costs far
// less than the allocation it replaces.
func (p *Pool[T]) locate(slot *T) int {
	addr := uintptr(unsafe.Pointer(slot))
	var zero T
	stride := unsafe.Sizeof(zero)
	for i, pg := range p.pages {
		base := uintptr(unsafe.Pointer(&pg.slots[0]))
		end := base + uintptr(len(pg.slots))*stride
		if addr >= base && addr < end {
			return i
		}
	}
	panic("pool: slot not owned by this pool")
}

// Acquirer is a single stage's local cache over a shared Pool. Not safe for
// concurrent use — exactly one goroutine (the stage that constructed it)
// calls Acquire.
type Acquirer[T any] struct {
	pool  *Pool[T]
	local []*T
}

// Acquire returns a slot from the local cache, refilling one whole page
// from the shared stack first if the cache is empty. Returns ErrExhausted
// if the shared stack is also empty.
func (a *Acquirer[T]) Acquire() (*T, error) {
	if len(a.local) == 0 {
		if err := a.refill(); err != nil {
			return nil, err
		}
	}
	n := len(a.local) - 1
	slot := a.local[n]
	a.local = a.local[:n]
	return slot, nil
}

func (a *Acquirer[T]) refill() error {
	idx, err := a.pool.shared.Dequeue()
	if err != nil {
		return ErrExhausted
	}
	pg := a.pool.pages[idx]
	for i := range pg.slots {
		a.local = append(a.local, &pg.slots[i])
	}
	return nil
}
