package deck

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/recall/internal/domain"
)

// Normalize concatenates the card's content after cleaning each part.
// Each field is lowercased, trimmed, and has its line endings unified
// before joining, so cosmetic edits do not change the identity of a
// card.
func Normalize(card domain.Card) string {
	clean := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	// Joined with newlines so distinct fields can never run together
	// into the same byte sequence.
	return strings.Join([]string{clean(card.Front), clean(card.Back), clean(card.Example)}, "\n")
}

// Hash returns the SHA-256 of the normalized card content as a hex
// string. Cards with the same hash are the same card for dedup
// purposes.
func Hash(card domain.Card) string {
	normalized := Normalize(card)
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}
