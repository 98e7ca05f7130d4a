package mastery

import (
	"testing"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

func TestAdvance(t *testing.T) {
	testCases := []struct {
		in       int
		expected int
	}{
		{0, 1},
		{1, 2},
		{2, 2}, // capped
	}
	for _, tc := range testCases {
		if got := Advance(tc.in); got != tc.expected {
			t.Errorf("Advance(%d) = %d, want %d", tc.in, got, tc.expected)
		}
	}
}

func TestDemote(t *testing.T) {
	testCases := []struct {
		in       int
		expected int
	}{
		{2, 1},
		{1, 0},
		{0, 0}, // floored
	}
	for _, tc := range testCases {
		if got := Demote(tc.in); got != tc.expected {
			t.Errorf("Demote(%d) = %d, want %d", tc.in, got, tc.expected)
		}
	}
}

func TestBoundsHoldUnderRepetition(t *testing.T) {
	m := 0
	for i := 0; i < 10; i++ {
		m = Advance(m)
	}
	if m != domain.MasteryFull {
		t.Errorf("repeated Advance ended at %d, want %d", m, domain.MasteryFull)
	}
	for i := 0; i < 10; i++ {
		m = Demote(m)
	}
	if m != domain.MasteryNew {
		t.Errorf("repeated Demote ended at %d, want %d", m, domain.MasteryNew)
	}
}

func TestDemoteLevel(t *testing.T) {
	cards := []*domain.Card{
		{ID: "a", Terms: []string{"a"}, Mastery: 2},
		{ID: "b", Terms: []string{"b"}, Mastery: 1},
		{ID: "c", Terms: []string{"c"}, Mastery: 2},
		{ID: "d", Terms: []string{"d"}, Mastery: 0},
	}

	changed := DemoteLevel(cards, 2)
	if changed != 2 {
		t.Errorf("expected 2 cards changed, got %d", changed)
	}

	want := map[string]int{"a": 1, "b": 1, "c": 1, "d": 0}
	for _, c := range cards {
		if c.Mastery != want[c.ID] {
			t.Errorf("card %s mastery = %d, want %d", c.ID, c.Mastery, want[c.ID])
		}
	}
}

func TestConfirmTwoPhase(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("second press inside window executes", func(t *testing.T) {
		c := NewConfirm()
		if c.Press(base) {
			t.Fatal("first press must only arm")
		}
		if c.State(base.Add(time.Second)) != ConfirmArmed {
			t.Fatal("expected armed state inside window")
		}
		if !c.Press(base.Add(2 * time.Second)) {
			t.Fatal("second press inside window must execute")
		}
		if c.State(base.Add(2*time.Second)) != ConfirmIdle {
			t.Error("confirmation should disarm after executing")
		}
	})

	t.Run("press after expiry re-arms", func(t *testing.T) {
		c := NewConfirm()
		c.Press(base)
		if c.State(base.Add(4*time.Second)) != ConfirmExpired {
			t.Fatal("expected expired state past the window")
		}
		if c.Press(base.Add(4 * time.Second)) {
			t.Fatal("a press past the window must re-arm, not execute")
		}
		if !c.Press(base.Add(5 * time.Second)) {
			t.Error("press inside the re-armed window must execute")
		}
	})

	t.Run("disarm cancels", func(t *testing.T) {
		c := NewConfirm()
		c.Press(base)
		c.Disarm()
		if c.State(base.Add(time.Second)) != ConfirmIdle {
			t.Error("expected idle after disarm")
		}
		if c.Press(base.Add(time.Second)) {
			t.Error("press after disarm must arm again, not execute")
		}
	})
}
