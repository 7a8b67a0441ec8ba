// Package common provides the data structures and utilities shared by the RPC
// client and server of the config-key service.
//
// The package focuses on:
//   - Message protocol definition for config-key, device and status requests
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat
//   - Utilities for Dragonboat (RAFT) integration
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Requests carry the command
//     (Prefix, Key, Value) or the device (UUID, ID). Responses carry the reply code, status
//     string and data. Hops counts how often a request was forwarded to the leader.
//
//   - MessageType: Enumeration of the supported operations.
//
//   - ServerConfig: Configuration of a node: quorum mode, storage engine, RAFT parameters,
//     cluster and API members, service limits and transport settings. Provides utilities
//     for converting to Dragonboat-specific configurations.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
