// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

// Options configures a Pool's page layout.
type Options struct {
	// PageSize is the number of slots per page, moved as a unit between
	// an Acquirer's local cache and the shared page stack. Default 100.
	PageSize int
	// LocalCacheDepth is accepted and defaulted to 5, but Pool does not
	// read it: an Acquirer's local cache holds at most one page, refilled
	// from the shared stack only once it is empty.
	LocalCacheDepth int
}

// DefaultOptions returns the page size (100) and local cache depth (5)
// called for by the packet-buffer pool's design.
func DefaultOptions() Options {
	return Options{PageSize: 100, LocalCacheDepth: 5}
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.LocalCacheDepth <= 0 {
		o.LocalCacheDepth = 5
	}
	return o
}
