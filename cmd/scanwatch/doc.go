// Package main hosts the scanwatch CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC
// calls against the daemon, queue maintenance operations, manual document
// submission, and configuration scaffolding. Heavy lifting lives in the
// internal packages; commands stay declarative.
package main
