package matching

import "strings"

// minTokenLen filters out single-character fragments from token terms.
const minTokenLen = 2

// SearchTerms derives fallback full-text queries from a filename, used only
// when identifier lookup yields no candidates. Ordered from most to least
// specific, deduplicated, with no empty strings.
func SearchTerms(filename string) []string {
	base := StripExt(filename)

	terms := []string{
		filename,
		base,
		strings.ToLower(filename),
		strings.ToLower(base),
		Standardize(base),
	}

	spaced := strings.TrimSpace(separators.ReplaceAllString(strings.ReplaceAll(base, "-", " "), " "))
	if spaced != base {
		terms = append(terms, spaced)
	}

	for _, token := range tokenSplit.Split(base, -1) {
		if len(token) < minTokenLen {
			continue
		}
		terms = append(terms, token, strings.ToLower(token))
	}

	return dedupe(terms)
}
