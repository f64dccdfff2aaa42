package matching

import (
	"path/filepath"
	"strings"

	"github.com/sddi-tools/catsync/internal/ckan"
)

// Match is the selected resource for a file, with the score and the rules that
// produced it. Score is always positive; a candidate that matches no rule is
// no match at all.
type Match struct {
	Resource ckan.Resource
	Score    int
	Reasons  []string
}

// Scoring rules, evaluated top-down per candidate; the first rule that applies
// determines the candidate's score. Rules are never summed.
const (
	scoreExactName     = 100
	scoreBaseName      = 90
	scoreURLFull       = 80
	scoreURLBase       = 70
	scoreFormatPartial = 60
	scoreSoleCandidate = 50
)

// minPartialLen is the shortest name fragment that counts for the
// format-plus-partial-name rule.
const minPartialLen = 3

// ScoreResources picks the best-matching resource for a filename, or nil when
// nothing scores. Ties keep the candidate that appears first in the input
// order.
func ScoreResources(resources []ckan.Resource, filename string) *Match {
	if len(resources) == 0 {
		return nil
	}

	base := StripExt(filename)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	sole := len(resources) == 1

	var best *Match
	for _, r := range resources {
		score, reason := scoreResource(r, filename, base, ext, sole)
		if score == 0 {
			continue
		}
		if best == nil || score > best.Score {
			best = &Match{Resource: r, Score: score, Reasons: []string{reason}}
		}
	}
	return best
}

// scoreResource evaluates the ordered rule list for one candidate and returns
// the first rule that fires.
func scoreResource(r ckan.Resource, filename, base, ext string, sole bool) (int, string) {
	name := r.Name
	lowerURL := strings.ToLower(r.URL)

	// Dotfiles strip to an empty base; the base rules must not fire vacuously.
	switch {
	case name == filename:
		return scoreExactName, "exact filename match"
	case base != "" && strings.EqualFold(StripExt(name), base):
		return scoreBaseName, "filename match without extension"
	case strings.Contains(lowerURL, strings.ToLower(filename)):
		return scoreURLFull, "URL contains filename"
	case base != "" && strings.Contains(lowerURL, strings.ToLower(base)):
		return scoreURLBase, "URL contains filename base"
	case formatAndPartialName(r, base, ext):
		return scoreFormatPartial, "format match with partial name"
	case sole:
		return scoreSoleCandidate, "only candidate"
	}
	return 0, ""
}

// formatAndPartialName reports whether the resource format equals the file
// extension and the resource name shares a name fragment of useful length with
// the filename.
func formatAndPartialName(r ckan.Resource, base, ext string) bool {
	if ext == "" || !strings.EqualFold(r.Format, ext) {
		return false
	}
	lowerName := strings.ToLower(r.Name)
	for _, token := range tokenSplit.Split(strings.ToLower(base), -1) {
		if len(token) >= minPartialLen && strings.Contains(lowerName, token) {
			return true
		}
	}
	return false
}
