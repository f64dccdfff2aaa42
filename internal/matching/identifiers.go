// Package matching derives catalog identifiers and search terms from local
// filenames and scores candidate resources against them.
package matching

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]`)
	separators = regexp.MustCompile(`[\s_]+`)
	tokenSplit = regexp.MustCompile(`[_\-\s]+`)
)

// Standardize applies the catalog's name standardization: lowercase, then keep
// only letters and digits. This mirrors how the catalog derives a dataset name
// from its title.
func Standardize(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// Hyphenate lowercases and replaces runs of whitespace and underscores with a
// single hyphen.
func Hyphenate(s string) string {
	h := separators.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(h, "-")
}

// StripExt returns the filename without its extension.
func StripExt(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// Identifiers derives candidate dataset identifiers from a filename, highest
// priority first. Empty transformations are skipped and the result is
// deduplicated preserving first-seen order.
func Identifiers(filename string) []string {
	base := StripExt(filename)

	candidates := []string{
		Standardize(base),
		Standardize(filename),
		filename,
		base,
		strings.ToLower(filename),
		Hyphenate(base),
	}

	return dedupe(candidates)
}

// dedupe removes empty strings and duplicates, preserving order.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
