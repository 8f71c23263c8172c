package index

import "strings"

// ReservedPrefix marks keys that downstream stores treat as structural.
const ReservedPrefix = "__"

var reservedKeys = map[string]struct{}{
	"prototype": {},
}

// ValidKey reports whether a term may be stored in any index mapping.
func ValidKey(term string) bool {
	if term == "" || strings.HasPrefix(term, ReservedPrefix) {
		return false
	}
	_, reserved := reservedKeys[term]
	return !reserved
}

// Sanitize returns a copy of fi without reserved keys and non-positive
// counts, and the number of entries it dropped.
func Sanitize(fi map[string]int) (ForwardIndex, int) {
	clean := make(ForwardIndex, len(fi))
	dropped := 0
	for term, count := range fi {
		if count <= 0 || !ValidKey(term) {
			dropped++
			continue
		}
		clean[term] = count
	}
	return clean, dropped
}
