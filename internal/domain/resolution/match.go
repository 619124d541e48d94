package resolution

import (
	"strings"
	"unicode"
)

// NormalizeLabel lowercases a field label and collapses whitespace and
// punctuation so that "Patient Name:", "patient_name" and "Patient  Name"
// all normalize to "patient name". Pure function, exported so curation
// tooling and tests can use the exact matching the engine uses.
func NormalizeLabel(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	pendingSpace := false
	for _, r := range label {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		default:
			// whitespace and punctuation both collapse to one separator
			pendingSpace = true
		}
	}
	return b.String()
}

// LabelsMatch reports whether two labels refer to the same field: normalized
// exact match first, then substring containment in either direction.
// Containment requires the shorter label to be non-empty.
func LabelsMatch(a, b string) bool {
	na, nb := NormalizeLabel(a), NormalizeLabel(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// MatchLabel finds the best candidate for label among candidates: an exact
// normalized match wins outright; otherwise the first containment match in
// candidate order is returned. The second result reports whether a match was
// found.
func MatchLabel(label string, candidates []string) (string, bool) {
	n := NormalizeLabel(label)
	if n == "" {
		return "", false
	}
	for _, c := range candidates {
		if NormalizeLabel(c) == n {
			return c, true
		}
	}
	for _, c := range candidates {
		nc := NormalizeLabel(c)
		if nc == "" {
			continue
		}
		if strings.Contains(n, nc) || strings.Contains(nc, n) {
			return c, true
		}
	}
	return "", false
}
