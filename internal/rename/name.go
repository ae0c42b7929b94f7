package rename

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Quarantine tags used when a file fails mid-pipeline.
const (
	TagError   = "ERROR"
	TagUnknown = "UNKNOWN"
)

// primaryKeys lists identifier keys in priority order; the first present,
// non-empty value becomes the name's primary identifier.
var primaryKeys = []string{
	"subject_name",
	"organization",
	"case_number",
}

// remainingKeys fixes the order of the well-known trailing identifiers.
// Identifier keys outside this list still appear in the name, sorted, so a
// classification never loses information to an unanticipated key.
var remainingKeys = []string{
	"organization",
	"case_number",
	"reference",
	"account_number",
	"service_date",
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// BuildStem constructs the deterministic filename stem
// <date>_<primaryIdentifier>_<documentType>_<remainingIdentifiers...> with
// every component sanitized and empty components omitted.
func BuildStem(date time.Time, documentType string, identifiers map[string]string) string {
	parts := []string{date.Format("20060102")}

	primaryKey := ""
	for _, key := range primaryKeys {
		if value := SanitizeComponent(identifiers[key]); value != "" {
			parts = append(parts, value)
			primaryKey = key
			break
		}
	}

	if docType := SanitizeComponent(documentType); docType != "" {
		parts = append(parts, docType)
	}

	known := map[string]bool{primaryKey: true}
	for _, key := range remainingKeys {
		known[key] = true
		if key == primaryKey {
			continue
		}
		if value := SanitizeComponent(identifiers[key]); value != "" {
			parts = append(parts, value)
		}
	}

	extras := make([]string, 0, len(identifiers))
	for key := range identifiers {
		if !known[key] {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	for _, key := range extras {
		if value := SanitizeComponent(identifiers[key]); value != "" {
			parts = append(parts, value)
		}
	}

	return strings.Join(parts, "_")
}

// QuarantineStem constructs the stem used when a file is tagged rather than
// classified: <date>_<tag>_<originalStem>.
func QuarantineStem(date time.Time, tag, originalStem string) string {
	parts := []string{date.Format("20060102"), tag}
	if stem := SanitizeComponent(originalStem); stem != "" {
		parts = append(parts, stem)
	}
	return strings.Join(parts, "_")
}

// SanitizeComponent folds accents, replaces every non-alphanumeric rune with
// an underscore, and collapses runs so a component never produces doubled or
// dangling separators.
func SanitizeComponent(value string) string {
	folded, _, err := transform.String(foldAccents, value)
	if err != nil {
		folded = value
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastUnderscore := true
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}
