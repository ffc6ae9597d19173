// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockstore

import (
	"container/list"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"code.hybscloud.com/pcapflow/internal/block"
	"code.hybscloud.com/pcapflow/internal/errs"
	"code.hybscloud.com/pcapflow/internal/stats"
)

// Queue is the block store queue (C6, spec §4.6/§3): a two-tier FIFO with
// an in-memory deque of resident blocks and a chain of bounded disk file
// stores. Push always attempts memory first; once resident bytes plus the
// incoming block would exceed the memory ceiling, the oldest resident
// block is spilled to the head-of-list file store (opening a new one if
// the current is FULL). Pop always drains the oldest tier first — disk
// before memory — so global FIFO order by push arrival is preserved across
// the memory/disk boundary (spec §3's invariant).
type Queue struct {
	cfg Config
	log *zap.Logger
	st  *stats.Counters

	mu         sync.Mutex
	memory     *list.List // of *block.Block, oldest at Front
	memorySize int64

	diskMu  sync.Mutex
	disk    *list.List // of *fileStore, oldest at Front
	nextID  atomic.Uint64
	lastGC  time.Time
}

// NewQueue constructs a Queue. If cfg.DiskSpillEnabled, folder is created
// if missing.
func NewQueue(cfg Config, log *zap.Logger, st *stats.Counters) (*Queue, error) {
	cfg = cfg.withDefaults()
	if cfg.DiskSpillEnabled {
		if err := os.MkdirAll(cfg.DiskSpillFolder, 0755); err != nil {
			return nil, err
		}
	}
	return &Queue{
		cfg:    cfg,
		log:    log,
		st:     st,
		memory: list.New(),
		disk:   list.New(),
	}, nil
}

// Push enqueues blk, spilling the oldest resident block to disk first if
// admitting blk would exceed the memory ceiling. Returns errs.ErrMemoryCeiling
// if disk spill is disabled and the ceiling is already exceeded, or
// errs.ErrDiskFull if the spill directory's free space is below its
// configured minimum — both are drop-and-count outcomes, not crashes.
func (q *Queue) Push(blk *block.Block) error {
	size := blockSize(blk)

	for {
		q.mu.Lock()
		if q.memorySize+size <= q.cfg.MemoryCeilingBytes || q.memory.Len() == 0 {
			break
		}
		oldest := q.memory.Remove(q.memory.Front()).(*block.Block)
		q.memorySize -= blockSize(oldest)
		q.mu.Unlock()

		if err := q.spill(oldest); err != nil {
			// The incoming block is the one dropped; the oldest stays resident.
			q.mu.Lock()
			q.memory.PushFront(oldest)
			q.memorySize += blockSize(oldest)
			q.mu.Unlock()
			return err
		}
	}
	defer q.mu.Unlock()

	if q.memorySize+size > q.cfg.MemoryCeilingBytes {
		// Memory is empty yet the incoming block alone exceeds the
		// ceiling: spill it directly rather than admitting an oversized
		// resident deque.
		q.mu.Unlock()
		err := q.spill(blk)
		q.mu.Lock()
		return err
	}

	q.memory.PushBack(blk)
	q.memorySize += size
	return nil
}

// spill pushes blk onto the head-of-list (newest) disk file store, opening
// a fresh one if the current is FULL or none exists yet (spec §4.6).
func (q *Queue) spill(blk *block.Block) error {
	if !q.cfg.DiskSpillEnabled {
		q.st.MemoryCeiling.Add(1)
		return errs.ErrMemoryCeiling
	}

	free, err := freeBytes(q.cfg.DiskSpillFolder)
	if err == nil && free < q.cfg.DiskFreeMinBytes {
		q.st.DiskFull.Add(1)
		q.log.Warn("disk spill refused: free space below minimum", zap.Int64("free_bytes", free))
		return errs.ErrDiskFull
	}

	q.diskMu.Lock()
	var fs *fileStore
	if e := q.disk.Back(); e != nil {
		fs = e.Value.(*fileStore)
	}
	needsNew := fs == nil
	if fs != nil {
		fs.pushMu.Lock()
		needsNew = fs.state != stateOpenForPush
		fs.pushMu.Unlock()
	}
	if needsNew {
		id := q.nextID.Add(1) - 1
		var ferr error
		fs, ferr = newFileStore(id, q.cfg.DiskSpillFolder, q.cfg.FileStoreMaxBytes, q.cfg.FileStoreMaxAge)
		if ferr != nil {
			q.diskMu.Unlock()
			q.st.DiskIO.Add(1)
			return ferr
		}
		q.disk.PushBack(fs)
	}
	q.diskMu.Unlock()

	if err := fs.push(blk); err != nil {
		q.st.DiskIO.Add(1)
		return err
	}
	q.st.BlocksSpilled.Add(1)
	return nil
}

// Pop removes and returns the oldest block across both tiers — disk
// before memory — preserving global FIFO push order. Returns (nil, false)
// if the queue is empty.
func (q *Queue) Pop() (*block.Block, bool) {
	if blk, ok := q.popDisk(); ok {
		return blk, true
	}
	return q.popMemory()
}

func (q *Queue) popDisk() (*block.Block, bool) {
	q.diskMu.Lock()
	e := q.disk.Front()
	if e == nil {
		q.diskMu.Unlock()
		return nil, false
	}
	fs := e.Value.(*fileStore)
	q.diskMu.Unlock()

	blk, err := fs.pop()
	if err != nil {
		if errors.Is(err, io.EOF) {
			// The reader has caught up with every block written so far:
			// seal the push side so a drained file store can be reaped.
			fs.forceClose()
		} else {
			q.st.DiskIO.Add(1)
		}
		q.reapIfDrained(fs)
		return nil, false
	}
	q.st.BlocksDrained.Add(1)
	q.reapIfDrained(fs)
	return blk, true
}

func (q *Queue) reapIfDrained(fs *fileStore) {
	if !fs.drained() {
		return
	}
	q.diskMu.Lock()
	for e := q.disk.Front(); e != nil; e = e.Next() {
		if e.Value.(*fileStore) == fs {
			q.disk.Remove(e)
			break
		}
	}
	q.diskMu.Unlock()
	_ = fs.destroy()
}

func (q *Queue) popMemory() (*block.Block, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.memory.Front()
	if e == nil {
		return nil, false
	}
	blk := q.memory.Remove(e).(*block.Block)
	q.memorySize -= blockSize(blk)
	return blk, true
}

// Len reports the total number of blocks resident across both tiers, for
// statistics; disk-tier counts are approximate (push-count minus
// pop-count across all file stores).
func (q *Queue) Len() int {
	q.mu.Lock()
	n := q.memory.Len()
	q.mu.Unlock()

	q.diskMu.Lock()
	for e := q.disk.Front(); e != nil; e = e.Next() {
		fs := e.Value.(*fileStore)
		fs.pushMu.Lock()
		fs.popMu.Lock()
		n += fs.pushCount - fs.popCount
		fs.popMu.Unlock()
		fs.pushMu.Unlock()
	}
	q.diskMu.Unlock()
	return n
}

// Close seals every open disk file store's push side so queued data is
// flushed to disk even if the process is shutting down mid-spill.
func (q *Queue) Close() {
	q.diskMu.Lock()
	defer q.diskMu.Unlock()
	for e := q.disk.Front(); e != nil; e = e.Next() {
		e.Value.(*fileStore).forceClose()
	}
}

func blockSize(blk *block.Block) int64 {
	if blk.Compressed != nil {
		return int64(len(blk.Compressed))
	}
	return int64(len(blk.Payload))
}
