// Package pipeline sequences one scanned file through validation, page
// extraction, optimization, classification, deterministic rename, and
// verification, producing a result record no matter where failure occurs.
package pipeline
