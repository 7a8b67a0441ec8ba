// Package util
//
// This file implements the entry statistics that engines report through db.DatabaseInfo.
// Sizes are counted into exponential buckets, so percentile values are estimates within
// a factor of four of the true size.
package util

import (
	"math"
	"sort"
)

// bucket boundaries in bytes, the last bucket holds everything larger
var sizeBoundaries = []int{
	16, 64, 256, 1024, 4096, // Bytes: 16B to 4KB
	16384, 65536, 262144, 1048576, // KB range: 16KB to 1MB
	4194304, 16777216, 67108864, // MB range: 4MB to 64MB
}

// NamespaceStats describes the entries of one namespace.
type NamespaceStats struct {
	Entries    int `json:"entries"`
	KeyBytes   int `json:"key_bytes"`
	ValueBytes int `json:"value_bytes"`
}

// EntryStats is the summary that engines attach to db.DatabaseInfo.Metadata.
type EntryStats struct {
	Entries        int                       `json:"entries"`
	KeyBytes       int                       `json:"key_bytes"`
	ValueBytes     int                       `json:"value_bytes"`
	MaxValueBytes  int                       `json:"max_value_bytes"`
	MedianValueEst int                       `json:"median_value_estimate"`
	P99ValueEst    int                       `json:"p99_value_estimate"`
	Namespaces     map[string]NamespaceStats `json:"namespaces"`
}

// SizeBytes returns the raw payload size of all entries.
func (s EntryStats) SizeBytes() int {
	return s.KeyBytes + s.ValueBytes
}

// NamespaceNames returns the namespaces covered by the stats in order.
func (s EntryStats) NamespaceNames() []string {
	names := make([]string, 0, len(s.Namespaces))
	for ns := range s.Namespaces {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// StatsCollector accumulates EntryStats during a scan.
// It is not safe for concurrent use, every scan uses its own collector.
type StatsCollector struct {
	stats   EntryStats
	buckets []int
}

// NewStatsCollector returns an empty collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		stats:   EntryStats{Namespaces: make(map[string]NamespaceStats)},
		buckets: make([]int, len(sizeBoundaries)+1),
	}
}

// Add records one entry.
func (c *StatsCollector) Add(namespace string, keyLen, valueLen int) {
	c.stats.Entries++
	c.stats.KeyBytes += keyLen
	c.stats.ValueBytes += valueLen
	if valueLen > c.stats.MaxValueBytes {
		c.stats.MaxValueBytes = valueLen
	}

	ns := c.stats.Namespaces[namespace]
	ns.Entries++
	ns.KeyBytes += keyLen
	ns.ValueBytes += valueLen
	c.stats.Namespaces[namespace] = ns

	idx := sort.SearchInts(sizeBoundaries, valueLen)
	c.buckets[idx]++
}

// Result finalizes the percentile estimates and returns the stats.
func (c *StatsCollector) Result() EntryStats {
	c.stats.MedianValueEst = c.percentile(50)
	c.stats.P99ValueEst = c.percentile(99)
	return c.stats
}

func (c *StatsCollector) percentile(p int) int {
	if c.stats.Entries == 0 {
		return 0
	}

	target := int(math.Ceil(float64(c.stats.Entries) * float64(p) / 100.0))
	cumulative := 0
	for i, n := range c.buckets {
		cumulative += n
		if cumulative < target {
			continue
		}
		switch {
		case i == 0:
			return sizeBoundaries[0] / 2
		case i < len(sizeBoundaries):
			return (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
		default:
			return c.stats.MaxValueBytes
		}
	}
	return c.stats.MaxValueBytes
}
