package library

import (
	"testing"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

func newCard(id string, term string) *domain.Card {
	return &domain.Card{ID: id, Terms: []string{term}}
}

func TestStartAndEndSession(t *testing.T) {
	set := &domain.CardSet{ID: "s1", Name: "Biology"}
	lib := New([]*domain.CardSet{set})

	stamp := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	lib.SetClock(func() time.Time { return stamp })

	started, err := lib.StartSession("s1")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if started != set {
		t.Error("a session reuses the set identity, not a copy")
	}
	if !set.SessionActive {
		t.Error("expected SessionActive set")
	}
	if !set.LastPlayed.Equal(stamp) {
		t.Errorf("lastPlayed = %v, want %v", set.LastPlayed, stamp)
	}

	if err := lib.EndSession("s1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if set.SessionActive {
		t.Error("ending a session clears the flag but keeps the set")
	}
	if lib.Find("s1") == nil {
		t.Error("the library template must persist after the session ends")
	}
}

func TestDelete(t *testing.T) {
	lib := New([]*domain.CardSet{
		{ID: "s1", Name: "Biology"},
		{ID: "s2", Name: "History"},
	})

	if err := lib.Delete("s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if lib.Find("s1") != nil {
		t.Error("deleted set still present")
	}
	if lib.Find("s2") == nil {
		t.Error("unrelated set was removed")
	}
	if err := lib.Delete("s1"); err == nil {
		t.Error("expected an error deleting a missing set")
	}
}

func TestPropagate(t *testing.T) {
	shared := newCard("abc123", "Mitochondria")

	biology := &domain.CardSet{ID: "bio", Name: "Biology", Cards: []*domain.Card{
		newCard("abc123", "Mitochondria"),
		newCard("b2", "Ribosome"),
	}}
	history := &domain.CardSet{ID: "hist", Name: "History", Cards: []*domain.Card{
		newCard("h1", "Bastille"),
	}}
	session := &domain.CardSet{ID: "ms", Name: "Mixed", Multistudy: true, Cards: []*domain.Card{
		shared,
		newCard("h1", "Bastille"),
	}}
	lib := New([]*domain.CardSet{biology, history, session})

	// Star and advance the shared card inside the session, then fan out.
	shared.Star = true
	shared.Mastery = 1
	lib.Propagate(session)

	bioCopy := biology.FindCard("abc123")
	if !bioCopy.Star || bioCopy.Mastery != 1 {
		t.Errorf("biology copy not updated: star=%v mastery=%d", bioCopy.Star, bioCopy.Mastery)
	}
	if biology.FindCard("b2").Star {
		t.Error("unrelated card in the same set was touched")
	}
	histCopy := history.FindCard("h1")
	if histCopy.Star || histCopy.Mastery != 0 {
		t.Error("unchanged session card must leave its siblings untouched")
	}
}

func TestPropagateIgnoresPlainSessions(t *testing.T) {
	cardA := newCard("a", "A")
	other := &domain.CardSet{ID: "o", Name: "Other", Cards: []*domain.Card{newCard("a", "A")}}
	session := &domain.CardSet{ID: "s", Name: "Solo", Cards: []*domain.Card{cardA}}
	lib := New([]*domain.CardSet{other, session})

	cardA.Star = true
	lib.Propagate(session)

	if other.FindCard("a").Star {
		t.Error("propagation only applies to multistudy sessions")
	}
}

func TestPropagateAnnouncesOnce(t *testing.T) {
	session := &domain.CardSet{ID: "ms", Name: "Mixed", Multistudy: true, Cards: []*domain.Card{
		newCard("a", "A"),
		newCard("b", "B"),
	}}
	setA := &domain.CardSet{ID: "sa", Cards: []*domain.Card{newCard("a", "A")}}
	setB := &domain.CardSet{ID: "sb", Cards: []*domain.Card{newCard("b", "B")}}
	lib := New([]*domain.CardSet{setA, setB, session})

	var emissions int
	var lastBatch int
	lib.OnChange(func(sets []*domain.CardSet) {
		emissions++
		lastBatch = len(sets)
	})

	session.Cards[0].Mastery = 2
	session.Cards[1].Mastery = 1
	lib.Propagate(session)

	// Both target sets change, but observers see one combined update.
	if emissions != 1 {
		t.Errorf("expected one atomic announcement, got %d", emissions)
	}
	if lastBatch != 2 {
		t.Errorf("expected both touched sets in the announcement, got %d", lastBatch)
	}
}

func TestNewMultistudy(t *testing.T) {
	bio := &domain.CardSet{ID: "bio", Name: "Biology", Cards: []*domain.Card{
		newCard("a", "Mitochondria"),
	}, CustomFieldNames: []string{"Organelle"}}
	hist := &domain.CardSet{ID: "hist", Name: "History", Cards: []*domain.Card{
		newCard("b", "Bastille"),
		newCard("a", "Mitochondria"), // shared with bio
	}}
	lib := New([]*domain.CardSet{bio, hist})

	ms, err := lib.NewMultistudy("Mixed", "bio", "hist")
	if err != nil {
		t.Fatalf("NewMultistudy: %v", err)
	}
	if !ms.Multistudy {
		t.Error("expected the multistudy flag")
	}
	if len(ms.Cards) != 2 {
		t.Fatalf("expected 2 cards (shared card deduplicated), got %d", len(ms.Cards))
	}
	if got := ms.Cards[0].OriginalSetName; got != "Biology" {
		t.Errorf("provenance label = %q, want %q", got, "Biology")
	}
	if ms.Cards[0] == bio.Cards[0] {
		t.Error("multistudy cards must be copies, not shared pointers")
	}
	if len(ms.CustomFieldNames) != 1 || ms.CustomFieldNames[0] != "Organelle" {
		t.Errorf("custom field names not merged: %v", ms.CustomFieldNames)
	}
	if lib.Find(ms.ID) == nil {
		t.Error("multistudy set should join the library")
	}
}

func TestStarredCopy(t *testing.T) {
	starred := newCard("a", "Mitochondria")
	starred.Star = true
	src := &domain.CardSet{ID: "bio", Name: "Biology", Cards: []*domain.Card{
		starred,
		newCard("b", "Ribosome"),
	}}
	lib := New([]*domain.CardSet{src})

	out, err := lib.StarredCopy("bio", "Biology (starred)")
	if err != nil {
		t.Fatalf("StarredCopy: %v", err)
	}
	if len(out.Cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(out.Cards))
	}
	if out.Cards[0].ID != "a" {
		t.Error("copies keep their card id so propagation stays linked")
	}
	if out.Cards[0] == starred {
		t.Error("expected a copy, not the original pointer")
	}

	t.Run("no starred cards is an error", func(t *testing.T) {
		plain := &domain.CardSet{ID: "p", Name: "Plain", Cards: []*domain.Card{newCard("x", "X")}}
		lib := New([]*domain.CardSet{plain})
		if _, err := lib.StarredCopy("p", "copy"); err == nil {
			t.Error("expected an error")
		}
	})
}
