// Package render turns scanned documents into classifier-ready page images:
// pdftoppm extraction plus deterministic dimension and alpha normalization.
package render
