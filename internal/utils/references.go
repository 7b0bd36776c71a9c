package utils

import (
	"strings"
)

// ParseReferenceChain splits a raw References header value into its
// constituent message-IDs, for POST mode's reference-depth check
// (internal/worker/dispatch.go's logReferenceDepth) — the one mode that
// re-derives headers from raw article text rather than trusting an
// upstream-parsed header, so it's the one place a runaway thread would
// otherwise go unnoticed.
func ParseReferenceChain(refs string) []string {
	if refs == "" {
		return []string{}
	}

	fields := strings.Fields(refs)

	ids := make([]string, 0, len(fields))
	for _, ref := range fields {
		// angle brackets stay attached; they're part of the message-ID.
		if ref := strings.TrimSpace(ref); ref != "" {
			ids = append(ids, ref)
		}
	}

	return ids
}
