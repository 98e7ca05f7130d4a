package domain

import "time"

// Mastery levels for a card. A card at MasteryFull is retired from the
// active rotation until it is demoted.
const (
	MasteryNew  = 0
	MasteryOnce = 1
	MasteryFull = 2
)

// CustomField is an extra answer field on a card, matched independently
// of the term (e.g. (Capital)(Paris)).
type CustomField struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// Card is a single study card. Terms holds every acceptable answer for the
// term field; the first entry is the primary term shown to the user.
// Content is display-only definition text and is never matched against.
type Card struct {
	ID      string   `json:"id" validate:"required"`
	Terms   []string `json:"terms" validate:"required,min=1"`
	Content string   `json:"content"`

	// Year, when set, must be answered with exact equality.
	Year   string        `json:"year,omitempty"`
	Image  string        `json:"image,omitempty"`
	Fields []CustomField `json:"fields,omitempty" validate:"dive"`

	Mastery int  `json:"mastery" validate:"gte=0,lte=2"`
	Star    bool `json:"star"`

	// Tags are display-only labels shown before the term.
	Tags []string `json:"tags,omitempty"`

	// OriginalSetName labels where this card came from inside a
	// multistudy session. Empty everywhere else.
	OriginalSetName string `json:"originalSetName,omitempty"`
}

// PrimaryTerm returns the display form of the card's term.
func (c *Card) PrimaryTerm() string {
	if len(c.Terms) == 0 {
		return ""
	}
	return c.Terms[0]
}

// CardSet is both a durable library template and, once started, a live
// session. Starting a session sets SessionActive on the same identity.
type CardSet struct {
	ID    string  `json:"id" validate:"required"`
	Name  string  `json:"name" validate:"required"`
	Cards []*Card `json:"cards" validate:"dive"`

	LastPlayed time.Time `json:"lastPlayed"`

	// ElapsedTime is accumulated active-study time. Paused intervals
	// contribute nothing.
	ElapsedTime time.Duration `json:"elapsedTime"`

	// TopStreak is the best correct-streak ever achieved in this set.
	TopStreak int `json:"topStreak"`

	SessionActive bool `json:"isSessionActive,omitempty"`

	// Multistudy marks a session whose cards were drawn from several
	// library sets; card updates fan back out to those sets.
	Multistudy bool `json:"isMultistudy,omitempty"`

	// CustomFieldNames declares which custom fields this set's cards
	// may carry, for consistent evaluation and display.
	CustomFieldNames []string `json:"customFieldNames,omitempty"`
}

// FindCard returns the card with the given id, or nil.
func (s *CardSet) FindCard(id string) *Card {
	for _, c := range s.Cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Mode selects how answers are collected during a session.
type Mode string

const (
	ModeStandard       Mode = "standard"
	ModeMultipleChoice Mode = "multiple_choice"
)

// Settings is the global study configuration.
type Settings struct {
	// StrictSpelling requires exact term matches; otherwise a small
	// edit distance is tolerated.
	StrictSpelling bool `json:"strictSpelling"`

	// RetypeOnMistake forces the user to retype the fields they got
	// wrong before the answer is revealed.
	RetypeOnMistake bool `json:"retypeOnMistake"`

	// StarredOnly restricts the active queue to starred cards.
	StarredOnly bool `json:"starredOnly"`

	Mode Mode `json:"mode"`
}
