// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config holds the core-visible configuration surface from spec §6,
// loaded by cmd/pcapflowd from the YAML file (gopkg.in/yaml.v3) named by its
// --config flag (github.com/alecthomas/kong); no flag overrides individual
// fields. Otherwise a plain struct any caller can populate directly when
// embedding the core as a library.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MirrorDirection selects which side of the mirror transport (§4.7) a
// running core plays, if any.
type MirrorDirection string

const (
	MirrorNone MirrorDirection = "none"
	MirrorSend MirrorDirection = "send"
	MirrorRecv MirrorDirection = "recv"
)

// Interface configures one capture.Pipeline.
type Interface struct {
	Name       string `yaml:"name"`
	Snaplen    int    `yaml:"snaplen"`
	Promisc    bool   `yaml:"promisc"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	BufferSize int    `yaml:"buffer_size"`
	BPFFilter  string `yaml:"bpf_filter"`
}

// Config is the core-visible configuration from spec §6, field names kept
// identical to the spec's own naming.
type Config struct {
	Interfaces []Interface `yaml:"interfaces"`

	BlockMemoryCeilingBytes int64 `yaml:"block_memory_ceiling_bytes"`

	DiskSpillEnabled  bool   `yaml:"disk_spill_enabled"`
	DiskSpillFolder   string `yaml:"disk_spill_folder"`
	DiskFreeMinBytes  int64  `yaml:"disk_free_min_bytes"`
	FileStoreMaxBytes int64  `yaml:"file_store_max_size_bytes"`
	FileStoreMaxAge   time.Duration `yaml:"file_store_max_time_ms"`

	RingCapacityPerStage int `yaml:"ring_capacity_per_stage"`
	PacketPoolPageSize   int `yaml:"packet_pool_page_size"`
	PacketPoolLocalPages int `yaml:"packet_pool_local_pages"`

	DedupEnabled  bool `yaml:"dedup_enabled"`
	DefragEnabled bool `yaml:"defrag_enabled"`

	Snaplen   int    `yaml:"snaplen"`
	Promisc   bool   `yaml:"promisc"`
	BPFFilter string `yaml:"bpf_filter"`

	MirrorDirection MirrorDirection `yaml:"mirror_direction"`
	MirrorEndpoint  string          `yaml:"mirror_endpoint"`

	DltMax int `yaml:"dlt_max"`

	BlockMaxBytes int `yaml:"block_max_bytes"`
	BlockMaxCount int `yaml:"block_max_count"`
	BlockCompress bool `yaml:"block_compress"`

	DispatchWindow int `yaml:"dispatch_window"`
}

// Default returns a Config populated with the defaults named throughout
// spec §4: page size 100, local cache depth 5, dedup window 65536 (fixed,
// not configurable per spec §4.4), block cap 4MiB / 8192 packets.
func Default() Config {
	return Config{
		BlockMemoryCeilingBytes: 64 << 20,
		DiskSpillEnabled:        true,
		DiskSpillFolder:         "./spill",
		DiskFreeMinBytes:        256 << 20,
		FileStoreMaxBytes:       8 << 20,
		FileStoreMaxAge:         30 * time.Second,
		RingCapacityPerStage:    4096,
		PacketPoolPageSize:      100,
		PacketPoolLocalPages:    5,
		DedupEnabled:            true,
		DefragEnabled:           true,
		Snaplen:                 65536,
		MirrorDirection:         MirrorNone,
		DltMax:                  64,
		BlockMaxBytes:           4 << 20,
		BlockMaxCount:           8192,
		DispatchWindow:          8,
	}
}

// Load reads and parses a YAML config file, starting from Default and
// letting the file override any field it sets explicitly.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
