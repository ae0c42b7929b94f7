// Package ipc implements JSON-RPC daemon control over a Unix domain socket.
// The scanwatch CLI is the only expected client.
package ipc
