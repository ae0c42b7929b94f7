package resilience

import (
	"errors"
	"strings"

	"scanwatch/internal/services"
)

// Severity buckets a failure by how the caller should react to it.
type Severity string

const (
	// SeverityTransient failures are safe to retry.
	SeverityTransient Severity = "transient"
	// SeverityPermanent failures should never be retried.
	SeverityPermanent Severity = "permanent"
	// SeverityCritical failures indicate environment trouble; surface loudly
	// but keep serving the next job.
	SeverityCritical Severity = "critical"
	// SeverityFatal failures indicate the process should stop accepting work.
	// Classification only; shutdown is the caller's decision.
	SeverityFatal Severity = "fatal"
)

var transientKeywords = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"rate limit",
	"too many requests",
	"429",
	"sharing violation",
	"being used by another process",
	"resource busy",
	"file is locked",
}

var fatalKeywords = []string{
	"out of memory",
	"cannot allocate memory",
	"memory error",
	"cannot write log",
	"log write failed",
}

var criticalKeywords = []string{
	"no such directory",
	"directory not found",
	"no space left",
	"disk full",
	"service unavailable",
	"host is down",
}

// Classify maps an error to a severity. Deterministic and stateless: the same
// error yields the same severity on every call. Precedence is transient, then
// fatal, then critical; anything unrecognized is permanent.
func Classify(err error) Severity {
	if err == nil {
		return SeverityPermanent
	}

	if errors.Is(err, services.ErrTimeout) ||
		errors.Is(err, services.ErrRateLimited) ||
		errors.Is(err, services.ErrTransient) {
		return SeverityTransient
	}

	text := strings.ToLower(err.Error())
	if matchesAny(text, transientKeywords) {
		return SeverityTransient
	}
	if matchesAny(text, fatalKeywords) {
		return SeverityFatal
	}
	if errors.Is(err, services.ErrConfiguration) || matchesAny(text, criticalKeywords) {
		return SeverityCritical
	}
	return SeverityPermanent
}

func matchesAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
