// Package mastery holds the pure rules for how judgments move a card's
// mastery level, plus the two-phase confirmation used by bulk resets.
package mastery

import (
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Advance raises a mastery level by one, capped at the mastered level.
func Advance(m int) int {
	if m >= domain.MasteryFull {
		return domain.MasteryFull
	}
	return m + 1
}

// Demote lowers a mastery level by one, floored at new.
func Demote(m int) int {
	if m <= domain.MasteryNew {
		return domain.MasteryNew
	}
	return m - 1
}

// DemoteLevel demotes every card currently at exactly level by one. It
// returns the number of cards changed.
func DemoteLevel(cards []*domain.Card, level int) int {
	changed := 0
	for _, c := range cards {
		if c.Mastery == level {
			c.Mastery = Demote(c.Mastery)
			changed++
		}
	}
	return changed
}

// ConfirmWindow is how long an armed confirmation stays valid.
const ConfirmWindow = 3 * time.Second

// ConfirmState is the visible state of a two-phase confirmation.
type ConfirmState int

const (
	ConfirmIdle ConfirmState = iota
	ConfirmArmed
	ConfirmExpired
)

// Confirm models a destructive action that needs two clicks: the first
// arms a short window, the second inside that window executes. The clock
// is supplied by the caller on every interaction; there is no internal
// timer.
type Confirm struct {
	window  time.Duration
	armedAt time.Time
	armed   bool
}

// NewConfirm returns a Confirm with the standard window.
func NewConfirm() *Confirm {
	return &Confirm{window: ConfirmWindow}
}

// State reports the tri-state at the given time. An armed confirmation
// whose window has passed reads as expired until the next Press.
func (c *Confirm) State(now time.Time) ConfirmState {
	if !c.armed {
		return ConfirmIdle
	}
	if now.Sub(c.armedAt) > c.window {
		return ConfirmExpired
	}
	return ConfirmArmed
}

// Press registers a click at the given time. It returns true when the
// click executes the action (a second click inside the window); arming
// and re-arming after expiry return false.
func (c *Confirm) Press(now time.Time) bool {
	if c.armed && now.Sub(c.armedAt) <= c.window {
		c.armed = false
		return true
	}
	c.armed = true
	c.armedAt = now
	return false
}

// Disarm cancels an armed confirmation without executing.
func (c *Confirm) Disarm() {
	c.armed = false
}
