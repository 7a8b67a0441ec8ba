// Package unix provides the Unix domain socket connectors for the base stream
// transport, meant for a client and a node on the same machine.
//
// The server removes a stale socket file before listening. The default server
// read buffer is 64 KB.
package unix
