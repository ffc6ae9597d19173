// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ring_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"code.hybscloud.com/pcapflow/internal/ring"
)

func TestMPMCIndirectBasicOperations(t *testing.T) {
	qEmpty := ring.NewMPMCIndirect(4)
	if _, err := qEmpty.Dequeue(); !errors.Is(err, ring.ErrWouldBlock) {
		t.Fatalf("empty dequeue: got %v, want ErrWouldBlock", err)
	}

	q := ring.NewMPMCIndirect(4)
	for i := range 4 {
		if err := q.Enqueue(uintptr(i + 100)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	if err := q.Enqueue(999); !errors.Is(err, ring.ErrWouldBlock) {
		t.Fatalf("full enqueue: got %v, want ErrWouldBlock", err)
	}

	for i := range 4 {
		val, err := q.Dequeue()
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if val != uintptr(i+100) {
			t.Fatalf("dequeue %d: got %d, want %d", i, val, i+100)
		}
	}
}

func TestMPMCIndirectWrapAround(t *testing.T) {
	q := ring.NewMPMCIndirect(4)

	for round := range 10 {
		for i := range 4 {
			val := uintptr(round*100 + i)
			if err := q.Enqueue(val); err != nil {
				t.Fatalf("round %d enqueue %d: %v", round, i, err)
			}
		}

		for i := range 4 {
			val, err := q.Dequeue()
			if err != nil {
				t.Fatalf("round %d dequeue %d: %v", round, i, err)
			}
			expected := uintptr(round*100 + i)
			if val != expected {
				t.Fatalf("round %d dequeue %d: got %d, want %d", round, i, val, expected)
			}
		}
	}
}

// TestMPMCIndirectConcurrent exercises the queue as internal/pool's shared
// page stack would: several producer goroutines pushing page handles back
// while several consumer goroutines pull them, verifying every handle that
// goes in comes out exactly once.
func TestMPMCIndirectConcurrent(t *testing.T) {
	const (
		producers = 4
		consumers = 4
		perGoroutine = 1 << 14
	)
	q := ring.NewMPMCIndirect(1024)

	var produced atomic.Int64
	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer wg.Done()
			b := ring.Backoff{}
			for i := 0; i < perGoroutine; i++ {
				for q.Enqueue(uintptr(base*perGoroutine+i) + 1) != nil {
					b.Wait()
				}
				b.Reset()
				produced.Add(1)
			}
		}(p)
	}

	var consumed atomic.Int64
	var cwg sync.WaitGroup
	cwg.Add(consumers)
	total := int64(producers * perGoroutine)
	for c := 0; c < consumers; c++ {
		go func() {
			defer cwg.Done()
			b := ring.Backoff{}
			for consumed.Load() < total {
				if _, err := q.Dequeue(); err != nil {
					b.Wait()
					continue
				}
				b.Reset()
				consumed.Add(1)
			}
		}()
	}

	wg.Wait()
	cwg.Wait()

	if got := consumed.Load(); got != total {
		t.Fatalf("consumed: got %d, want %d", got, total)
	}
}

func TestMPMCIndirectDrain(t *testing.T) {
	q := ring.NewMPMCIndirect(4)
	for i := range 4 {
		if err := q.Enqueue(uintptr(i)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	q.Drain()
	for i := range 4 {
		if _, err := q.Dequeue(); err != nil {
			t.Fatalf("dequeue %d after drain: %v", i, err)
		}
	}
	if _, err := q.Dequeue(); !errors.Is(err, ring.ErrWouldBlock) {
		t.Fatalf("dequeue on drained empty queue: got %v, want ErrWouldBlock", err)
	}
}
