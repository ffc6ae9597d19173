// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool_test

import (
	"errors"
	"sync"
	"testing"

	"code.hybscloud.com/pcapflow/internal/pool"
)

type testSlot struct {
	data [64]byte
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := pool.New[testSlot](200, pool.Options{PageSize: 50, LocalCacheDepth: 2})
	a := p.Acquirer()

	var acquired []*testSlot
	for i := 0; i < 200; i++ {
		s, err := a.Acquire()
		if err != nil {
			t.Fatalf("Acquire(%d): %v", i, err)
		}
		acquired = append(acquired, s)
	}

	if _, err := a.Acquire(); !errors.Is(err, pool.ErrExhausted) {
		t.Fatalf("Acquire past capacity: got %v, want ErrExhausted", err)
	}

	for _, s := range acquired {
		p.Release(s)
	}

	for i := 0; i < 200; i++ {
		if _, err := a.Acquire(); err != nil {
			t.Fatalf("Acquire after full release(%d): %v", i, err)
		}
	}
}

// TestReleaseFromOtherGoroutine models a drop path in a downstream stage
// releasing a slot it never acquired itself.
func TestReleaseFromOtherGoroutine(t *testing.T) {
	p := pool.New[testSlot](100, pool.Options{PageSize: 25, LocalCacheDepth: 1})
	a := p.Acquirer()

	slots := make(chan *testSlot, 100)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for s := range slots {
			p.Release(s)
		}
	}()

	for i := 0; i < 100; i++ {
		s, err := a.Acquire()
		if err != nil {
			t.Fatalf("Acquire(%d): %v", i, err)
		}
		slots <- s
	}
	close(slots)
	wg.Wait()

	for i := 0; i < 100; i++ {
		if _, err := a.Acquire(); err != nil {
			t.Fatalf("Acquire after cross-goroutine release(%d): %v", i, err)
		}
	}
}

// TestPoolConservation checks that acquiring and immediately releasing never
// exhausts the pool, however many times it's repeated — total slots in
// circulation never exceeds capacity.
func TestPoolConservation(t *testing.T) {
	const capacity = 300
	p := pool.New[testSlot](capacity, pool.Options{PageSize: 100, LocalCacheDepth: 5})
	a := p.Acquirer()

	for i := 0; i < capacity*10; i++ {
		s, err := a.Acquire()
		if err != nil {
			t.Fatalf("Acquire(%d): %v", i, err)
		}
		p.Release(s)
	}
}
