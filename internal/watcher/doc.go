// Package watcher detects new files in the scanner inbox and reports each
// one exactly once, after its bytes have stopped changing for a configured
// stability window.
package watcher
