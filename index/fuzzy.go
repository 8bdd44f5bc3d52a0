package index

import (
	"sort"
	"strings"
	"unicode"
)

// nameIndex is a token-inverted fuzzy index over a fixed set of
// entity names, addressed by their position in the owning slice
// (stopIx/areaIx). A name equal to the query (ignoring case) outranks
// a name that starts with the query, which outranks a trigram-similar
// name; a query found inside a name but not at its start is scored by
// trigram similarity only. Ties are broken by name length ascending
// then id ascending.
type nameIndex struct {
	names    []string
	tokens   []string   // tokens[i] is names[i] lowercased, compared whole against the query
	trigrams []stringSet // trigrams[i] is the trigram set for names[i]

	tokenPostings map[string][]int // token -> entity ids containing it
}

type stringSet map[string]struct{}

func buildNameIndex(names []string) *nameIndex {
	idx := &nameIndex{
		names:         names,
		tokens:        make([]string, len(names)),
		trigrams:      make([]stringSet, len(names)),
		tokenPostings: map[string][]int{},
	}

	for i, name := range names {
		lower := strings.ToLower(name)
		idx.tokens[i] = lower
		idx.trigrams[i] = trigramSet(lower)

		for _, tok := range tokenize(name) {
			idx.tokenPostings[tok] = append(idx.tokenPostings[tok], i)
		}
	}

	return idx
}

// tokenize splits on Unicode whitespace and punctuation, lowercasing
// what's left.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			flush()
			continue
		}
		cur.WriteRune(unicode.ToLower(r))
	}
	flush()
	return tokens
}

func trigramSet(s string) stringSet {
	set := stringSet{}
	padded := "  " + s + " "
	runes := []rune(padded)
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

func jaccard(a, b stringSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for g := range a {
		if _, ok := b[g]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

type hit struct {
	id    int
	score float64
}

const trigramThreshold = 0.3

// search returns the top-k matches for q, scored exact=3 > prefix=2 >
// trigram=1+similarity (sim >= trigramThreshold), everything else
// excluded.
func (idx *nameIndex) search(q string, k int) []hit {
	if k <= 0 || len(idx.names) == 0 {
		return nil
	}

	lowerQ := strings.ToLower(q)
	qTrigrams := trigramSet(lowerQ)

	hits := make([]hit, len(idx.names))
	for i := range idx.names {
		hits[i] = hit{id: i, score: -1}
	}

	for i, name := range idx.tokens {
		switch {
		case lowerQ != "" && name == lowerQ:
			hits[i].score = 3
		case lowerQ != "" && strings.HasPrefix(name, lowerQ):
			hits[i].score = 2
		default:
			sim := jaccard(qTrigrams, idx.trigrams[i])
			if sim >= trigramThreshold {
				hits[i].score = 1 + sim
			}
		}
	}

	matched := hits[:0]
	for _, h := range hits {
		if h.score >= 0 {
			matched = append(matched, h)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		li, lj := len(idx.names[matched[i].id]), len(idx.names[matched[j].id])
		if li != lj {
			return li < lj
		}
		return matched[i].id < matched[j].id
	})

	if len(matched) > k {
		matched = matched[:k]
	}
	return matched
}
