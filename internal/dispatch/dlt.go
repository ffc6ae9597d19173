// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dispatch

// dltCache lazily tracks distinct link-layer type ids seen by a Dispatcher,
// bounded by Config.DltMax — the Go-native stand-in for spec §4.8's
// "resolve a pcap-style handle for that link type, lazily opening
// dead-handles per dlt, bounded by DLT_TYPES_MAX." No pack repo grounds a
// real libpcap dead-handle binding (see the capture.Driver design note), so
// this cache only tracks membership; the dlt id itself is always passed
// through to Processor.OnPacket regardless of whether it was admitted.
type dltCache struct {
	max  int
	seen map[uint16]struct{}
}

func newDltCache(max int) dltCache {
	return dltCache{max: max, seen: make(map[uint16]struct{}, max)}
}

// resolve registers dlt if the cache has room and returns it unchanged;
// the dlt value is always forwarded to the processor even past the cache
// ceiling, since dropping a packet solely because its DLT wasn't cached
// first has no grounding in spec §7's error-kind table.
func (c *dltCache) resolve(dlt uint16) uint16 {
	if _, ok := c.seen[dlt]; ok {
		return dlt
	}
	if len(c.seen) < c.max {
		c.seen[dlt] = struct{}{}
	}
	return dlt
}
