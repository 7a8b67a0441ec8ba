// Package cmd implements the command-line interface of dCfg. It provides
// commands to run a node and to talk to it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a node (local or raft mode) with the configured engine and transport
//   - configkey: config-key operations (get, put, del, exists, list, dump) and a perf tool
//   - device: Creates and destroys the dm-crypt secret of a device
//   - status: Prints role, epoch and engine information of a node
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dcfg -help for a list of all commands.
package cmd
