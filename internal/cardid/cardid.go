// Package cardid derives stable identities for imported cards. Two cards
// with the same normalized content share an id, so re-importing a deck or
// copying a card into another set keeps mastery propagation linked.
package cardid

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Normalize flattens a card's identifying content into one canonical
// string. Each part is lowercased, trimmed, and has its line endings
// normalized before joining.
func Normalize(card *domain.Card) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	parts := []string{
		normalizePart(strings.Join(card.Terms, "|")),
		normalizePart(card.Content),
		normalizePart(card.Year),
	}
	for _, f := range card.Fields {
		parts = append(parts, normalizePart(f.Name)+"="+normalizePart(f.Value))
	}

	// Joined with newlines so adjacent fields cannot run together and
	// collide, e.g. "term" + "content" vs "termcontent".
	return strings.Join(parts, "\n")
}

// ID returns the card's content identity: the SHA-256 of its normalized
// content as a hex string.
func ID(card *domain.Card) string {
	normalized := Normalize(card)
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}
