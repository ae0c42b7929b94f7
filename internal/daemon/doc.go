// Package daemon wires the scanwatch services together: it owns the watcher,
// the workflow manager, the health monitor, and the single-instance lock.
package daemon
