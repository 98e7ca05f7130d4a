// Package library manages the collection of card sets and the lifecycle
// operations that span more than one set: starting and ending sessions,
// deriving new sets, and fanning multistudy updates back out.
package library

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Library is the in-memory collection of card sets. It is single-threaded
// by design: all mutation happens on the event loop that owns it, and
// each exported operation is one atomic state transition.
type Library struct {
	sets []*domain.CardSet

	// onChange, when set, is invoked once per completed operation with
	// every set the operation touched.
	onChange func(sets []*domain.CardSet)

	clock func() time.Time
}

// New builds a library over the given sets.
func New(sets []*domain.CardSet) *Library {
	return &Library{sets: sets, clock: time.Now}
}

// SetClock overrides the time source, for tests.
func (l *Library) SetClock(clock func() time.Time) { l.clock = clock }

// OnChange registers the change subscriber. Like the session engine's
// update callback, emissions are fire-and-forget.
func (l *Library) OnChange(fn func(sets []*domain.CardSet)) { l.onChange = fn }

// Sets returns the library's sets in display order.
func (l *Library) Sets() []*domain.CardSet { return l.sets }

// Find returns the set with the given id, or nil.
func (l *Library) Find(id string) *domain.CardSet {
	for _, s := range l.sets {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Add appends a set to the library.
func (l *Library) Add(set *domain.CardSet) {
	l.sets = append(l.sets, set)
	l.emit(set)
}

// Delete removes a set from the library.
func (l *Library) Delete(id string) error {
	for i, s := range l.sets {
		if s.ID == id {
			l.sets = append(l.sets[:i], l.sets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("library: no set with id %s", id)
}

// StartSession marks a set as a live session and stamps lastPlayed.
func (l *Library) StartSession(id string) (*domain.CardSet, error) {
	set := l.Find(id)
	if set == nil {
		return nil, fmt.Errorf("library: no set with id %s", id)
	}
	set.SessionActive = true
	set.LastPlayed = l.clock()
	l.emit(set)
	return set, nil
}

// EndSession clears a set's active-session flag. The library template
// underneath persists with its accumulated state.
func (l *Library) EndSession(id string) error {
	set := l.Find(id)
	if set == nil {
		return fmt.Errorf("library: no set with id %s", id)
	}
	set.SessionActive = false
	l.emit(set)
	return nil
}

// Propagate fans the per-card study state (mastery and star) of a
// multistudy session out to every other set containing a card with the
// same id. The session set itself is skipped; it was updated directly.
// All target sets are mutated in one call and announced together, so
// observers never see a partially applied update.
func (l *Library) Propagate(session *domain.CardSet) {
	if !session.Multistudy {
		return
	}

	var touched []*domain.CardSet
	for _, set := range l.sets {
		if set.ID == session.ID {
			continue
		}
		changed := false
		for _, card := range session.Cards {
			target := set.FindCard(card.ID)
			if target == nil {
				continue
			}
			if target.Mastery != card.Mastery || target.Star != card.Star {
				target.Mastery = card.Mastery
				target.Star = card.Star
				changed = true
			}
		}
		if changed {
			touched = append(touched, set)
		}
	}
	if len(touched) > 0 {
		l.emit(touched...)
	}
}

// NewMultistudy builds a session set drawing the cards of several source
// sets, each card labelled with the name of the set it came from. Cards
// are copied rather than shared, so the sets stay independent aggregates;
// Propagate carries study state back by card id.
func (l *Library) NewMultistudy(name string, sourceIDs ...string) (*domain.CardSet, error) {
	ms := &domain.CardSet{
		ID:         uuid.NewString(),
		Name:       name,
		Multistudy: true,
	}

	fieldNames := make(map[string]bool)
	seen := make(map[string]bool)
	for _, id := range sourceIDs {
		src := l.Find(id)
		if src == nil {
			return nil, fmt.Errorf("library: no set with id %s", id)
		}
		for _, card := range src.Cards {
			if seen[card.ID] {
				continue
			}
			seen[card.ID] = true
			dup := cloneCard(card)
			dup.OriginalSetName = src.Name
			ms.Cards = append(ms.Cards, dup)
		}
		for _, name := range src.CustomFieldNames {
			if !fieldNames[name] {
				fieldNames[name] = true
				ms.CustomFieldNames = append(ms.CustomFieldNames, name)
			}
		}
	}

	l.sets = append(l.sets, ms)
	l.emit(ms)
	return ms, nil
}

// StarredCopy derives a new set holding copies of a set's starred cards.
// The copies keep their card ids, so a later multistudy session links
// them back to the original.
func (l *Library) StarredCopy(id, name string) (*domain.CardSet, error) {
	src := l.Find(id)
	if src == nil {
		return nil, fmt.Errorf("library: no set with id %s", id)
	}

	out := &domain.CardSet{
		ID:               uuid.NewString(),
		Name:             name,
		CustomFieldNames: append([]string(nil), src.CustomFieldNames...),
	}
	for _, card := range src.Cards {
		if card.Star {
			out.Cards = append(out.Cards, cloneCard(card))
		}
	}
	if len(out.Cards) == 0 {
		return nil, fmt.Errorf("library: set %s has no starred cards", id)
	}

	l.sets = append(l.sets, out)
	l.emit(out)
	return out, nil
}

func (l *Library) emit(sets ...*domain.CardSet) {
	if l.onChange != nil {
		l.onChange(sets)
	}
}

func cloneCard(c *domain.Card) *domain.Card {
	out := *c
	out.Terms = append([]string(nil), c.Terms...)
	out.Tags = append([]string(nil), c.Tags...)
	out.Fields = append([]domain.CustomField(nil), c.Fields...)
	return &out
}
