// Package queue derives the active rotation of cards for a study pass.
package queue

import (
	"math/rand"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Eligible reports whether a card belongs in the active rotation under the
// given settings: starred if the session is starred-only, and not yet
// mastered.
func Eligible(card *domain.Card, settings domain.Settings) bool {
	if settings.StarredOnly && !card.Star {
		return false
	}
	return card.Mastery < domain.MasteryFull
}

// Active returns this pass's rotation: the eligible cards in a uniformly
// random permutation drawn from rng. The input slice is not modified.
func Active(cards []*domain.Card, settings domain.Settings, rng *rand.Rand) []*domain.Card {
	var out []*domain.Card
	for _, c := range cards {
		if Eligible(c, settings) {
			out = append(out, c)
		}
	}
	// Fisher-Yates via rand.Shuffle; every permutation is equally likely.
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Status summarizes whether a session over these cards can continue.
type Status int

const (
	// StatusActive means at least one card is still in rotation.
	StatusActive Status = iota

	// StatusComplete means every candidate card has been mastered.
	StatusComplete

	// StatusNoEligible means the starred-only filter left no candidates
	// at all; this is reported distinctly from plain completion.
	StatusNoEligible
)

// Check classifies the card list under the given settings.
func Check(cards []*domain.Card, settings domain.Settings) Status {
	candidates := 0
	for _, c := range cards {
		if settings.StarredOnly && !c.Star {
			continue
		}
		candidates++
		if c.Mastery < domain.MasteryFull {
			return StatusActive
		}
	}
	if candidates == 0 {
		if settings.StarredOnly {
			return StatusNoEligible
		}
		return StatusComplete
	}
	return StatusComplete
}
