// Package classifier talks to the remote vision model that assigns each
// scanned document a type and its filing identifiers. The client sends one
// request per call; resilience lives with the caller.
package classifier
