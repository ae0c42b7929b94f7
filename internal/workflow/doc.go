// Package workflow connects the watcher, the queue store, and the pipeline.
// A single lane drains the queue in arrival order so only one document is
// ever inside the pipeline at a time.
package workflow
