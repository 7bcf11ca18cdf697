package memory

import (
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultMerchantLimit caps how many merchants go into a prompt.
const DefaultMerchantLimit = 20

type ranked struct {
	name     string
	distance int
	index    int
}

// RelevantMerchants returns the known merchants that fuzzily appear in text,
// closest first. A merchant matches when some window of words of the same
// length in text is within a third of its length in edit distance.
func RelevantMerchants(known []string, text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMerchantLimit
	}
	words := tokenize(text)
	if len(words) == 0 || len(known) == 0 {
		return nil
	}

	var hits []ranked
	for i, m := range known {
		mw := tokenize(m)
		if len(mw) == 0 {
			continue
		}
		needle := strings.Join(mw, " ")
		best := -1
		for start := 0; start+len(mw) <= len(words); start++ {
			window := strings.Join(words[start:start+len(mw)], " ")
			d := fuzzy.LevenshteinDistance(needle, window)
			if d <= len(needle)/3 && (best < 0 || d < best) {
				best = d
				if d == 0 {
					break
				}
			}
		}
		if best >= 0 {
			hits = append(hits, ranked{name: m, distance: best, index: i})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].distance != hits[b].distance {
			return hits[a].distance < hits[b].distance
		}
		return hits[a].index < hits[b].index
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&'
	})
}
