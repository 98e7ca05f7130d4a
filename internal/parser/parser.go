// Package parser reads the raw text deck format:
//
//	Term / Definition /// Year ||| image-url, (Name)(Value)(Name)(Value)
//	&&&
//	Next term / Next definition
//
// Cards are separated by a line containing only "&&&". The year, image
// and custom-field suffixes are optional; custom fields are separated
// from the image by ", (".
package parser

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/conorfennell/studydeck/internal/cardid"
	"github.com/conorfennell/studydeck/internal/domain"
)

const (
	cardSeparator  = "&&&"
	termSeparator  = " / "
	yearSeparator  = "///"
	extraSeparator = "|||"
)

var fieldPattern = regexp.MustCompile(`\(([^)]*)\)\(([^)]*)\)`)

// ParseFile reads a deck file from the given path and extracts all cards.
func ParseFile(path string) ([]*domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards. Blocks that carry
// no term are skipped.
func Parse(r io.Reader) ([]*domain.Card, error) {
	scanner := bufio.NewScanner(r)
	var cards []*domain.Card
	var block []string

	finishCard := func() {
		text := strings.TrimSpace(strings.Join(block, "\n"))
		block = nil
		if text == "" {
			return
		}
		if card := parseCard(text); card != nil {
			cards = append(cards, card)
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == cardSeparator {
			finishCard()
			continue
		}
		block = append(block, line)
	}
	finishCard() // Finish the very last card in the input.

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}

// parseCard interprets one card block. The shape is
// "term / definition [/// year] [||| extras]"; the definition may span
// multiple lines.
func parseCard(text string) *domain.Card {
	main := text
	var extras string
	if i := strings.Index(text, extraSeparator); i >= 0 {
		main = text[:i]
		extras = strings.TrimSpace(text[i+len(extraSeparator):])
	}

	var year string
	if i := strings.Index(main, yearSeparator); i >= 0 {
		year = strings.TrimSpace(main[i+len(yearSeparator):])
		main = main[:i]
	}

	term := strings.TrimSpace(main)
	var content string
	if i := strings.Index(main, termSeparator); i >= 0 {
		term = strings.TrimSpace(main[:i])
		content = strings.TrimSpace(main[i+len(termSeparator):])
	}
	if term == "" {
		return nil
	}

	card := &domain.Card{
		Terms:   []string{term},
		Content: content,
		Year:    year,
	}
	card.Image, card.Fields = parseExtras(extras)
	card.ID = cardid.ID(card)
	return card
}

// parseExtras splits the "|||" suffix into an image reference and custom
// fields. Fields are consecutive "(Name)(Value)" groups; when both an
// image and fields appear, ", (" separates them.
func parseExtras(extras string) (string, []domain.CustomField) {
	if extras == "" {
		return "", nil
	}

	fieldPart := extras
	var image string
	switch {
	case strings.HasPrefix(extras, "("):
		// Fields only, no image.
	default:
		i := strings.Index(extras, ", (")
		if i < 0 {
			return strings.TrimSpace(extras), nil
		}
		image = strings.TrimSpace(extras[:i])
		fieldPart = extras[i+2:]
	}

	var fields []domain.CustomField
	for _, m := range fieldPattern.FindAllStringSubmatch(fieldPart, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		fields = append(fields, domain.CustomField{Name: name, Value: strings.TrimSpace(m[2])})
	}
	return image, fields
}

// FieldNames returns the distinct custom-field names used by the cards,
// in first-seen order, for a set's customFieldNames declaration.
func FieldNames(cards []*domain.Card) []string {
	var names []string
	seen := make(map[string]bool)
	for _, c := range cards {
		for _, f := range c.Fields {
			if !seen[f.Name] {
				seen[f.Name] = true
				names = append(names, f.Name)
			}
		}
	}
	return names
}
