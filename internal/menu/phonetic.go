package menu

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Spoken queries arrive through speech recognition, so the final search tier
// matches phonetically rather than lexically. Stage one filters candidates by
// Double Metaphone code overlap, stage two ranks them by Jaro-Winkler
// similarity on the original strings; a candidate must clear the phonetic
// threshold to win. When no name overlaps phonetically, a pure Jaro-Winkler
// pass runs against all names under the stricter fuzzy threshold.
const (
	phoneticThreshold = 0.70
	fuzzyThreshold    = 0.85
)

// resolveSpoken finds the item name most phonetically similar to query.
// Both inputs are compared case-insensitively; multi-word names score on the
// best of full-string, concatenated, and pairwise token similarity.
func resolveSpoken(query string, names []string) (string, bool) {
	qTokens := strings.Fields(strings.ToLower(query))
	if len(qTokens) == 0 {
		return "", false
	}
	qCodes := metaphoneCodes(qTokens)
	qFull := strings.Join(qTokens, " ")

	var (
		bestName     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, name := range names {
		nTokens := strings.Fields(strings.ToLower(name))
		nFull := strings.Join(nTokens, " ")

		if codesOverlap(qCodes, metaphoneCodes(nTokens)) {
			// Code overlap earns the looser threshold and pairwise token
			// scoring; a shared word like "dosa" is enough to rank the name.
			score := similarity(qTokens, nTokens, qFull, nFull)
			if score >= phoneticThreshold && (!bestPhonetic || score > bestScore) {
				bestName, bestScore, bestPhonetic = name, score, true
			}
			continue
		}
		if bestPhonetic {
			continue
		}
		// Without phonetic support only whole-name similarity counts; a
		// single shared token must not drag in an unrelated item.
		score := wholeNameSimilarity(qTokens, nTokens, qFull, nFull)
		if score >= fuzzyThreshold && score > bestScore {
			bestName, bestScore = name, score
		}
	}
	return bestName, bestName != ""
}

// metaphoneCodes returns the union of Double Metaphone codes over the tokens.
// Tokens too short to produce a code are skipped.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, 2*len(tokens))
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score across three views of the pair:
// the full strings, the space-stripped strings, and the best token pairing.
func similarity(qTokens, nTokens []string, qFull, nFull string) float64 {
	score := wholeNameSimilarity(qTokens, nTokens, qFull, nFull)
	for _, qt := range qTokens {
		for _, nt := range nTokens {
			if s := matchr.JaroWinkler(qt, nt, false); s > score {
				score = s
			}
		}
	}
	return score
}

// wholeNameSimilarity compares the strings as units, with and without spaces.
func wholeNameSimilarity(qTokens, nTokens []string, qFull, nFull string) float64 {
	score := matchr.JaroWinkler(qFull, nFull, false)
	if len(qTokens) > 1 || len(nTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(nTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
