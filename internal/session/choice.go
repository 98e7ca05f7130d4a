package session

import (
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/evaluate"
)

// maxDistractors is the number of wrong options offered alongside the
// correct term.
const maxDistractors = 3

// SelectOption judges a multiple-choice pick. An option is correct when
// it matches any of the card's acceptable terms, not just the primary
// one. There is no retype concept in multiple choice.
func (e *Engine) SelectOption(opt string) {
	if e.done || e.settings.Mode != domain.ModeMultipleChoice || e.feedback != FeedbackNone {
		return
	}
	card := e.Current()
	if card == nil {
		return
	}

	if matchesAnyTerm(card, opt) {
		e.judgeCorrect(evaluate.Result{Match: true})
	} else {
		e.feedback = FeedbackIncorrect
		e.wrongMsg = wrongMessage(card, evaluate.Result{})
		e.pendingBreak = true
	}
	e.emit()
}

// buildChoices assembles the option list for a card: its primary term
// plus up to three distractors sampled without replacement from the
// other cards' primary terms, shuffled together.
func (e *Engine) buildChoices(card *domain.Card) []string {
	if card == nil {
		return nil
	}

	var pool []string
	seen := make(map[string]bool)
	for _, other := range e.set.Cards {
		if other.ID == card.ID {
			continue
		}
		term := other.PrimaryTerm()
		if term == "" || matchesAnyTerm(card, term) {
			continue
		}
		key := strings.ToLower(term)
		if seen[key] {
			continue
		}
		seen[key] = true
		pool = append(pool, term)
	}

	e.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if len(pool) > maxDistractors {
		pool = pool[:maxDistractors]
	}

	choices := append(pool, card.PrimaryTerm())
	e.rng.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	return choices
}

// matchesAnyTerm reports whether text equals one of the card's acceptable
// terms, ignoring case and surrounding whitespace.
func matchesAnyTerm(card *domain.Card, text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, term := range card.Terms {
		if strings.EqualFold(trimmed, strings.TrimSpace(term)) {
			return true
		}
	}
	return false
}
