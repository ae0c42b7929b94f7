// Package rename turns classification results into deterministic, collision
// free file names and performs the atomic renames that apply them.
package rename
