// Package session drives a study session over one card set: it picks the
// card to show, judges submissions, advances mastery, and tracks streaks
// and elapsed time.
//
// The engine is pure state: it performs no I/O and never blocks. Every
// operation is a single synchronous transition on one state record, and
// every state-changing operation ends by emitting the updated set through
// the OnUpdate callback. Persistence is the subscriber's problem; the
// engine never waits for it and never rolls back.
package session

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
	"github.com/conorfennell/studydeck/internal/evaluate"
	"github.com/conorfennell/studydeck/internal/mastery"
	"github.com/conorfennell/studydeck/internal/queue"
)

// Feedback is the per-card feedback state. FeedbackNone is the idle state
// awaiting input; the others await acknowledgment (or a retype).
type Feedback int

const (
	FeedbackNone Feedback = iota
	FeedbackCorrect
	FeedbackIncorrect
	FeedbackReveal
	FeedbackRetype
)

func (f Feedback) String() string {
	switch f {
	case FeedbackNone:
		return "idle"
	case FeedbackCorrect:
		return "correct"
	case FeedbackIncorrect:
		return "incorrect"
	case FeedbackReveal:
		return "reveal"
	case FeedbackRetype:
		return "retype"
	}
	return "unknown"
}

// RetypeState records which fields were already answered correctly when a
// retype was forced. Locked fields keep their submitted value and are not
// re-validated; the user only corrects the rest.
type RetypeState struct {
	TermLocked   bool
	YearLocked   bool
	FieldsLocked map[string]bool

	// submitted holds the values of the locked fields from the original
	// submission, overlaid onto the retype input at evaluation time.
	submitted evaluate.Input
}

// Options configures an Engine. Every field is optional.
type Options struct {
	// Rand is the randomness source for shuffles and distractor
	// sampling. Defaults to a time-seeded source.
	Rand *rand.Rand

	// Clock supplies wall-clock time. Defaults to time.Now.
	Clock func() time.Time

	// OnUpdate is invoked with the full updated set after every
	// state-changing operation.
	OnUpdate func(*domain.CardSet)

	// OnFinish is invoked once when the session completes.
	OnFinish func()

	// OnCorrect is invoked once per successful first-time judgment,
	// for lifetime statistics.
	OnCorrect func()
}

// Engine is the session state machine. It is not safe for concurrent use;
// the study loop is single-threaded and event-driven.
type Engine struct {
	set      *domain.CardSet
	settings domain.Settings

	rng   *rand.Rand
	clock func() time.Time

	onUpdate  func(*domain.CardSet)
	onFinish  func()
	onCorrect func()

	// rotation is the shuffled active queue for the current pass, pos
	// the index of the current card within it.
	rotation []*domain.Card
	pos      int

	// currentID only changes while feedback is idle, so a recomputed
	// queue never swaps the visible card mid-feedback.
	currentID string

	feedback     Feedback
	streak       int
	pendingBreak bool
	correction   string
	wrongMsg     string
	retype       *RetypeState
	shakeSeq     int

	choices []string

	done       bool
	noEligible bool

	paused     bool
	lastResume time.Time
}

// New starts a session over set. The set is mutated in place as the
// session progresses. If nothing is eligible to study, the session is
// finished immediately and OnFinish fires before New returns.
func New(set *domain.CardSet, settings domain.Settings, opts Options) *Engine {
	e := &Engine{
		set:       set,
		settings:  settings,
		rng:       opts.Rand,
		clock:     opts.Clock,
		onUpdate:  opts.OnUpdate,
		onFinish:  opts.OnFinish,
		onCorrect: opts.OnCorrect,
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	e.lastResume = e.clock()

	e.rotation = queue.Active(set.Cards, settings, e.rng)
	if len(e.rotation) == 0 {
		e.finish()
		return e
	}
	e.currentID = e.rotation[0].ID
	e.prepareCard()
	return e
}

// Set returns the underlying card set.
func (e *Engine) Set() *domain.CardSet { return e.set }

// Settings returns the active settings.
func (e *Engine) Settings() domain.Settings { return e.settings }

// Current returns the card being studied, or nil once the session is done.
func (e *Engine) Current() *domain.Card {
	if e.done {
		return nil
	}
	return e.set.FindCard(e.currentID)
}

// Feedback returns the current feedback state.
func (e *Engine) Feedback() Feedback { return e.feedback }

// Streak returns the current consecutive-correct streak.
func (e *Engine) Streak() int { return e.streak }

// Correction returns the accepted spelling when the last judgment was a
// fuzzy match, or "" when the submission was exact.
func (e *Engine) Correction() string { return e.correction }

// WrongMessage identifies what was wrong with the last judged submission.
func (e *Engine) WrongMessage() string { return e.wrongMsg }

// Retype returns the retype bookkeeping, or nil outside FeedbackRetype.
func (e *Engine) Retype() *RetypeState { return e.retype }

// ShakeSeq increments each time a retype attempt fails again; observers
// use it to trigger transient feedback.
func (e *Engine) ShakeSeq() int { return e.shakeSeq }

// Choices returns the multiple-choice options for the current card.
func (e *Engine) Choices() []string { return e.choices }

// Done reports whether the session has completed.
func (e *Engine) Done() bool { return e.done }

// NoEligible reports whether the session ended because the starred-only
// filter left nothing to study, as opposed to genuine completion.
func (e *Engine) NoEligible() bool { return e.noEligible }

// Submit judges a free-text answer for the current card. A submission
// with nothing to evaluate is silently ignored. Only meaningful in
// standard mode while idle or retyping.
func (e *Engine) Submit(in evaluate.Input) {
	if e.done || e.settings.Mode == domain.ModeMultipleChoice {
		return
	}
	if e.feedback != FeedbackNone && e.feedback != FeedbackRetype {
		return
	}
	card := e.Current()
	if card == nil || in.Blank(card) {
		return
	}

	if e.feedback == FeedbackRetype {
		e.submitRetype(card, in)
		return
	}

	res := evaluate.Evaluate(card, in, e.settings.StrictSpelling)
	if res.Match {
		e.judgeCorrect(res)
		e.emit()
		return
	}

	if e.settings.RetypeOnMistake {
		e.enterRetype(card, in, res)
	} else {
		e.feedback = FeedbackIncorrect
		e.wrongMsg = wrongMessage(card, res)
		e.pendingBreak = true
	}
	e.emit()
}

// submitRetype re-validates a retype attempt. Fields that were correct in
// the original submission keep their stored value.
func (e *Engine) submitRetype(card *domain.Card, in evaluate.Input) {
	merged := e.mergeLocked(in)
	res := evaluate.Evaluate(card, merged, e.settings.StrictSpelling)
	if !res.Match {
		// Keep correcting until right.
		e.shakeSeq++
		return
	}

	// The retype confirms the earlier judgment after the fact: no second
	// mastery advance, no second streak increment, and the pending
	// streak-break is cancelled.
	e.feedback = FeedbackCorrect
	e.correction = ""
	e.pendingBreak = false
	e.retype = nil
	e.emit()
}

// judgeCorrect applies a first-time correct judgment to the current card.
func (e *Engine) judgeCorrect(res evaluate.Result) {
	card := e.Current()
	card.Mastery = mastery.Advance(card.Mastery)

	e.streak++
	if e.streak > e.set.TopStreak {
		e.set.TopStreak = e.streak
	}

	e.feedback = FeedbackCorrect
	e.correction = ""
	if !e.settings.StrictSpelling && res.BestDist > 0 {
		e.correction = res.BestTerm
	}
	if e.onCorrect != nil {
		e.onCorrect()
	}
}

// enterRetype transitions to FeedbackRetype, locking the fields that were
// already correct so only the rest are re-validated.
func (e *Engine) enterRetype(card *domain.Card, in evaluate.Input, res evaluate.Result) {
	rt := &RetypeState{
		TermLocked:   res.TermMatch,
		YearLocked:   card.Year != "" && res.YearMatch,
		FieldsLocked: make(map[string]bool, len(card.Fields)),
		submitted:    in,
	}
	for name, ok := range res.FieldResults {
		rt.FieldsLocked[name] = ok
	}
	e.retype = rt
	e.feedback = FeedbackRetype
	e.pendingBreak = true
}

// mergeLocked overlays the stored values of locked fields onto a retype
// input.
func (e *Engine) mergeLocked(in evaluate.Input) evaluate.Input {
	rt := e.retype
	merged := evaluate.Input{
		Term:   in.Term,
		Year:   in.Year,
		Fields: make(map[string]string, len(in.Fields)),
	}
	for k, v := range in.Fields {
		merged.Fields[k] = v
	}
	if rt.TermLocked {
		merged.Term = rt.submitted.Term
	}
	if rt.YearLocked {
		merged.Year = rt.submitted.Year
	}
	for name, locked := range rt.FieldsLocked {
		if locked {
			merged.Fields[name] = rt.submitted.Fields[name]
		}
	}
	return merged
}

// Reveal shows the answer without a judgment. When retype-on-mistake is
// active it instead forces a retype: revealing does not bypass the
// requirement to type the correct answer. No mastery change either way.
func (e *Engine) Reveal() {
	if e.done || e.feedback != FeedbackNone {
		return
	}
	card := e.Current()
	if card == nil {
		return
	}

	e.pendingBreak = true
	if e.settings.RetypeOnMistake && e.settings.Mode != domain.ModeMultipleChoice {
		e.retype = &RetypeState{FieldsLocked: make(map[string]bool)}
		e.feedback = FeedbackRetype
	} else {
		e.feedback = FeedbackReveal
	}
	e.emit()
}

// Override corrects the engine's own judgment on the current card and
// immediately advances. Override(true) turns an incorrect or revealed
// card into a correct one; Override(false) takes back a correct
// judgment. Disabled while retyping.
func (e *Engine) Override(wasCorrect bool) {
	if e.done {
		return
	}
	card := e.Current()
	if card == nil {
		return
	}

	switch {
	case wasCorrect && (e.feedback == FeedbackIncorrect || e.feedback == FeedbackReveal):
		card.Mastery = mastery.Advance(card.Mastery)
		e.streak++
		if e.streak > e.set.TopStreak {
			e.set.TopStreak = e.streak
		}
		e.pendingBreak = false
		if e.onCorrect != nil {
			e.onCorrect()
		}
	case !wasCorrect && e.feedback == FeedbackCorrect:
		// Top streak is deliberately left alone even if the corrected
		// judgment was what set it.
		card.Mastery = mastery.Demote(card.Mastery)
		e.streak = 0
		e.pendingBreak = false
	default:
		return
	}

	e.advanceCard()
}

// Advance acknowledges the rendered judgment and moves to the next card.
// An unconfirmed wrong answer breaks the streak here, not at judgment
// time, so an override or retype-confirm can still cancel it.
func (e *Engine) Advance() {
	if e.done {
		return
	}
	if e.feedback == FeedbackNone || e.feedback == FeedbackRetype {
		return
	}
	if e.pendingBreak {
		e.streak = 0
		e.pendingBreak = false
	}
	e.advanceCard()
}

// advanceCard returns feedback to idle and selects the next card: the
// next still-eligible entry of the current rotation, else a fresh
// rotation, else the session is complete.
func (e *Engine) advanceCard() {
	e.feedback = FeedbackNone
	e.correction = ""
	e.wrongMsg = ""
	e.retype = nil

	for i := e.pos + 1; i < len(e.rotation); i++ {
		c := e.rotation[i]
		if queue.Eligible(c, e.settings) {
			e.pos = i
			e.currentID = c.ID
			e.prepareCard()
			e.emit()
			return
		}
	}

	// Rotation exhausted: start a new pass.
	e.rotation = queue.Active(e.set.Cards, e.settings, e.rng)
	if len(e.rotation) == 0 {
		e.finish()
		return
	}
	// Avoid re-showing the card just answered when others remain.
	if len(e.rotation) > 1 && e.rotation[0].ID == e.currentID {
		e.rotation[0], e.rotation[1] = e.rotation[1], e.rotation[0]
	}
	e.pos = 0
	e.currentID = e.rotation[0].ID
	e.prepareCard()
	e.emit()
}

// prepareCard sets up per-card state when a card becomes current.
func (e *Engine) prepareCard() {
	e.choices = nil
	if e.settings.Mode == domain.ModeMultipleChoice {
		e.choices = e.buildChoices(e.Current())
	}
}

// finish marks the session complete and notifies the subscriber.
func (e *Engine) finish() {
	e.done = true
	e.currentID = ""
	e.choices = nil
	e.noEligible = queue.Check(e.set.Cards, e.settings) == queue.StatusNoEligible
	e.emit()
	if e.onFinish != nil {
		e.onFinish()
	}
}

// ToggleStar flips the star flag on the current card.
func (e *Engine) ToggleStar() {
	card := e.Current()
	if card == nil {
		return
	}
	card.Star = !card.Star
	e.emit()
}

// SetSettings applies new settings mid-session and recomputes the active
// queue. The visible card is only swapped out while feedback is idle.
func (e *Engine) SetSettings(settings domain.Settings) {
	if e.done {
		e.settings = settings
		return
	}
	e.settings = settings
	e.rotation = queue.Active(e.set.Cards, e.settings, e.rng)
	// A current card that fell out of the rotation keeps pos at -1 so
	// the next advance starts from the rotation's head.
	e.pos = -1
	for i, c := range e.rotation {
		if c.ID == e.currentID {
			e.pos = i
			break
		}
	}

	if e.feedback == FeedbackNone {
		if len(e.rotation) == 0 {
			e.finish()
			return
		}
		current := e.set.FindCard(e.currentID)
		if current == nil || !queue.Eligible(current, e.settings) {
			e.currentID = e.rotation[0].ID
			e.pos = 0
		}
		e.prepareCard()
	}
	e.emit()
}

// Pause freezes elapsed-time accounting. Idempotent.
func (e *Engine) Pause() {
	if e.paused {
		return
	}
	now := e.clock()
	e.set.ElapsedTime += now.Sub(e.lastResume)
	e.paused = true
}

// Resume restarts elapsed-time accounting after a pause. The paused
// interval contributes nothing.
func (e *Engine) Resume() {
	if !e.paused {
		return
	}
	e.paused = false
	e.lastResume = e.clock()
}

// Elapsed returns the total active-study time so far.
func (e *Engine) Elapsed() time.Duration {
	if e.paused {
		return e.set.ElapsedTime
	}
	return e.set.ElapsedTime + e.clock().Sub(e.lastResume)
}

// Close flushes the final elapsed-time delta and emits a last update, the
// implicit pause at exit. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.Pause()
	if e.onUpdate != nil {
		e.onUpdate(e.set)
	}
}

// syncElapsed folds the active interval since the last resume into the
// set, so every emitted update carries accurate elapsed time.
func (e *Engine) syncElapsed() {
	if e.paused {
		return
	}
	now := e.clock()
	e.set.ElapsedTime += now.Sub(e.lastResume)
	e.lastResume = now
}

// emit publishes the updated set. Fire-and-forget: the engine has already
// moved to its next state and never waits on the subscriber.
func (e *Engine) emit() {
	e.syncElapsed()
	if e.onUpdate != nil {
		e.onUpdate(e.set)
	}
}

// wrongMessage explains an incorrect submission, naming the most
// significant wrong field: term first, then year, then the first wrong
// custom field.
func wrongMessage(card *domain.Card, res evaluate.Result) string {
	if !res.TermMatch {
		return fmt.Sprintf("The answer was %q.", card.PrimaryTerm())
	}
	if !res.YearMatch {
		return fmt.Sprintf("The year was %s.", strings.TrimSpace(card.Year))
	}
	for _, f := range card.Fields {
		if !res.FieldResults[f.Name] {
			return fmt.Sprintf("%s: %s", f.Name, f.Value)
		}
	}
	return ""
}
