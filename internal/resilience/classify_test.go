package resilience

import (
	"errors"
	"fmt"
	"testing"

	"scanwatch/internal/services"
)

func TestClassifySentinels(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Severity
	}{
		{"timeout marker", services.Wrap(services.ErrTimeout, "classify", "request", "request timed out", nil), SeverityTransient},
		{"rate limit marker", services.Wrap(services.ErrRateLimited, "classify", "request", "throttled", nil), SeverityTransient},
		{"transient marker", services.Wrap(services.ErrTransient, "rename", "replace", "target busy", nil), SeverityTransient},
		{"configuration marker", services.Wrap(services.ErrConfiguration, "validate", "load", "bad settings", nil), SeverityCritical},
		{"validation marker", services.Wrap(services.ErrValidation, "validate", "stat", "not a document", nil), SeverityPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyKeywordFallback(t *testing.T) {
	cases := []struct {
		text string
		want Severity
	}{
		{"connection refused by upstream", SeverityTransient},
		{"HTTP 429 too many requests", SeverityTransient},
		{"file is being used by another process", SeverityTransient},
		{"fork: cannot allocate memory", SeverityFatal},
		{"log write failed: read-only filesystem", SeverityFatal},
		{"write /out/a.pdf: no space left on device", SeverityCritical},
		{"upstream service unavailable", SeverityCritical},
		{"401 unauthorized", SeverityPermanent},
		{"malformed response body", SeverityPermanent},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			if got := Classify(errors.New(tc.text)); got != tc.want {
				t.Fatalf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
			}
		})
	}
}

func TestClassifyPrecedenceTransientWins(t *testing.T) {
	// Text matching both transient and critical sets classifies transient.
	err := errors.New("request timed out because service unavailable")
	if got := Classify(err); got != SeverityTransient {
		t.Fatalf("Classify = %s, want transient", got)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	err := fmt.Errorf("wrapping: %w", errors.New("rate limit exceeded"))
	first := Classify(err)
	for i := 0; i < 5; i++ {
		if got := Classify(err); got != first {
			t.Fatalf("classification changed between calls: %s then %s", first, got)
		}
	}
}
