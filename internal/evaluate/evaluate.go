// Package evaluate judges free-text answers against a card.
package evaluate

import (
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/fuzzy"
)

// fuzzyThreshold is the largest edit distance still accepted when strict
// spelling is off.
const fuzzyThreshold = 2

// articles are stripped from the front of a term before matching.
var articles = []string{"the ", "la ", "el "}

// Input carries the raw text the user submitted for each field of a card.
type Input struct {
	Term   string
	Year   string
	Fields map[string]string
}

// Blank reports whether the input has nothing to evaluate against the card:
// no term, no year (or the card has none), and no declared custom field.
func (in Input) Blank(card *domain.Card) bool {
	if strings.TrimSpace(in.Term) != "" {
		return false
	}
	if card.Year != "" && strings.TrimSpace(in.Year) != "" {
		return false
	}
	for _, f := range card.Fields {
		if strings.TrimSpace(in.Fields[f.Name]) != "" {
			return false
		}
	}
	return true
}

// Result is the outcome of evaluating one submission.
type Result struct {
	Match bool

	TermMatch   bool
	YearMatch   bool
	FieldsMatch bool

	// FieldResults holds the per-field outcome for every custom field
	// declared on the card, keyed by field name.
	FieldResults map[string]bool

	// BestTerm is the acceptable term closest to the input, and BestDist
	// its edit distance. When the match was fuzzy (BestDist > 0) the
	// caller can offer BestTerm as a spelling correction.
	BestTerm string
	BestDist int
}

// Evaluate judges in against card. With strict set, the term must match one
// of the card's acceptable terms exactly after normalization; otherwise an
// edit distance of up to 2 is tolerated. Pure: identical inputs always
// produce identical results.
func Evaluate(card *domain.Card, in Input, strict bool) Result {
	res := Result{
		YearMatch:    true,
		FieldsMatch:  true,
		FieldResults: make(map[string]bool, len(card.Fields)),
	}

	submitted := NormalizeTerm(in.Term)
	res.BestDist = -1
	for _, term := range card.Terms {
		d := fuzzy.Distance(submitted, NormalizeTerm(term))
		if res.BestDist < 0 || d < res.BestDist {
			res.BestDist = d
			res.BestTerm = term
		}
	}

	threshold := fuzzyThreshold
	if strict {
		threshold = 0
	}
	res.TermMatch = res.BestDist >= 0 && res.BestDist <= threshold

	if card.Year != "" {
		res.YearMatch = strings.TrimSpace(in.Year) == strings.TrimSpace(card.Year)
	}

	for _, f := range card.Fields {
		ok := strings.EqualFold(
			strings.TrimSpace(in.Fields[f.Name]),
			strings.TrimSpace(f.Value),
		)
		res.FieldResults[f.Name] = ok
		if !ok {
			res.FieldsMatch = false
		}
	}

	res.Match = res.TermMatch && res.YearMatch && res.FieldsMatch
	return res
}

// NormalizeTerm lowercases, trims, and strips a single leading definite
// article from a term.
func NormalizeTerm(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, art := range articles {
		if strings.HasPrefix(s, art) {
			s = strings.TrimSpace(s[len(art):])
			break
		}
	}
	return s
}
