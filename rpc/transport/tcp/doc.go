// Package tcp provides the TCP connectors for the base stream transport.
//
// Accepted and dialed connections are tuned with the configured TCP options
// (nodelay, keepalive, linger, socket buffers). The default server read buffer
// is 512 KB.
package tcp
