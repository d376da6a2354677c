package keyword

import (
	"fmt"
	"strings"

	"github.com/hyperjump/reelrank/pkg/utils"
)

// maxSuggestDistance bounds how far a suggested term may be from the typed one.
const maxSuggestDistance = 2

// Suggest respells each query token that is not an indexed title term with
// the closest title term, preferring terms found in more movies.
func (b *BleveIndex) Suggest(query string) (string, bool, error) {
	dict, err := b.titleTerms()
	if err != nil {
		return query, false, err
	}
	tokens := utils.Tokenize(query)
	changed := false
	for i, tok := range tokens {
		if _, ok := dict[tok]; ok {
			continue
		}
		if best, ok := closestTerm(tok, dict); ok {
			tokens[i] = best
			changed = true
		}
	}
	if !changed {
		return query, false, nil
	}
	return strings.Join(tokens, " "), true, nil
}

// titleTerms returns every indexed title term with its document count.
func (b *BleveIndex) titleTerms() (map[string]uint64, error) {
	fd, err := b.index.FieldDict("title")
	if err != nil {
		return nil, fmt.Errorf("read title dictionary: %w", err)
	}
	defer fd.Close()

	terms := make(map[string]uint64)
	for {
		entry, err := fd.Next()
		if err != nil {
			return nil, fmt.Errorf("read title dictionary: %w", err)
		}
		if entry == nil {
			return terms, nil
		}
		terms[entry.Term] = entry.Count
	}
}

// closestTerm picks the term with the smallest edit distance to tok, then
// the highest count, then the lexically smallest term.
func closestTerm(tok string, dict map[string]uint64) (string, bool) {
	best, bestDist, bestCount := "", maxSuggestDistance+1, uint64(0)
	n := len([]rune(tok))
	for term, count := range dict {
		if d := len([]rune(term)) - n; d > maxSuggestDistance || d < -maxSuggestDistance {
			continue
		}
		dist := editDistance(tok, term)
		if dist > maxSuggestDistance {
			continue
		}
		if dist < bestDist ||
			(dist == bestDist && count > bestCount) ||
			(dist == bestDist && count == bestCount && term < best) {
			best, bestDist, bestCount = term, dist, count
		}
	}
	return best, best != ""
}

// editDistance is the Levenshtein distance between a and b over runes.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			next := diag + cost
			if row[j]+1 < next {
				next = row[j] + 1
			}
			if row[j-1]+1 < next {
				next = row[j-1] + 1
			}
			diag, row[j] = row[j], next
		}
	}
	return row[len(rb)]
}
