// Package util provides helpers shared by the db.KVDB engines and the CLI.
//
// The package contains:
//   - statistics: a StatsCollector that summarizes entry counts, key and value sizes
//     and per-namespace totals for db.DatabaseInfo
//   - HashString: the FNV-1a hash used to derive replica ids from node names
package util
