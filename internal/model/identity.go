package model

import (
	"regexp"
	"strings"
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeCompanyName derives the cache identity for a raw company name:
// lowercase, runs of non-alphanumeric characters collapsed to a single
// hyphen, leading/trailing hyphens stripped. "Acme Corp" -> "acme-corp".
//
// Identities are deliberately coarse: "Acme Inc" and "ACME INC." share one
// cache row. Research is keyed globally, not per-user, so two users asking
// about the same company reuse each other's results.
func NormalizeCompanyName(name string) string {
	return strings.Trim(nonAlnumRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
