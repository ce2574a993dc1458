// Package dedup decides whether a candidate business already exists as a
// customer or prior lead for a tenant. Matching is exact-before-fuzzy:
// registration number first, then normalized name + outward postcode.
package dedup

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists entity suffixes stripped during name normalization.
var legalSuffixes = []string{
	" LIMITED", " LTD", " LTD.",
	" PLC", " P.L.C.",
	" LLP", " L.L.P.", " L.L.P",
	" LP", " L.P.", " L.P",
	" LLC", " L.L.C.", " L.L.C",
	" INC", " INC.", " INCORPORATED",
	" CORP", " CORP.", " CORPORATION",
	" CIC", " C.I.C.",
	" CO", " CO.",
	" AND CO", " & CO",
	" AND SONS", " & SONS",
	" TA", " T/A",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// diacriticFold removes combining marks after NFD decomposition, so
// "Café" and "Cafe" normalize identically.
var diacriticFold = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// NormalizeName standardizes a business name for matching by:
//  1. Trimming whitespace and uppercasing
//  2. Folding diacritics
//  3. Removing common legal suffixes (Ltd, PLC, LLP, Inc, ...)
//  4. Stripping punctuation and mapping "&" to "AND"
//  5. Collapsing runs of spaces
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToUpper(name)

	if folded, _, err := transform.String(diacriticFold, name); err == nil {
		name = folded
	}

	// Strip at most one legal suffix; "Smith & Sons Ltd" keeps its
	// "& Sons" once "Ltd" is gone, which is intended.
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "AND",
		"-", " ",
		"(", "",
		")", "",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// OutwardCode returns the outward part of a UK postcode ("LE17 5NJ" ->
// "LE17"). Postcodes without a space are truncated before the final three
// characters, the standard inward length.
func OutwardCode(postcode string) string {
	pc := strings.ToUpper(strings.TrimSpace(postcode))
	if pc == "" {
		return ""
	}

	if i := strings.IndexByte(pc, ' '); i > 0 {
		return pc[:i]
	}
	if len(pc) > 3 {
		return pc[:len(pc)-3]
	}
	return pc
}

// NormalizeRegistration canonicalizes a company registration number:
// uppercase, no spaces, and numeric-only values zero-padded to the
// 8-digit registry format.
func NormalizeRegistration(reg string) string {
	reg = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(reg), " ", ""))
	if reg == "" {
		return ""
	}

	digitsOnly := true
	for _, r := range reg {
		if r < '0' || r > '9' {
			digitsOnly = false
			break
		}
	}
	if digitsOnly && len(reg) < 8 {
		reg = strings.Repeat("0", 8-len(reg)) + reg
	}
	return reg
}

// Fingerprint builds the merge key for a business: normalized name plus
// outward postcode. Candidates from different providers with the same
// fingerprint are treated as the same physical business.
func Fingerprint(name, postcode string) string {
	return NormalizeName(name) + "|" + OutwardCode(postcode)
}
