package deck

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedCards int
		expectedFront string
		expectedBack  string
		expectedEx    string
	}{
		{
			name:          "Simple front and back",
			input:         "Q: die Katze\nA: the cat",
			expectedCards: 1,
			expectedFront: "die Katze",
			expectedBack:  "the cat",
		},
		{
			name:          "Front, back and example",
			input:         "Q: recevoir\nA: to receive\nE: J'ai reçu ta lettre.",
			expectedCards: 1,
			expectedFront: "recevoir",
			expectedBack:  "to receive",
			expectedEx:    "J'ai reçu ta lettre.",
		},
		{
			name: "Multiline back",
			input: `
Q: ser vs estar
A: ser: permanent traits
estar: temporary states
`,
			expectedCards: 1,
			expectedFront: "ser vs estar",
			expectedBack:  "ser: permanent traits\nestar: temporary states",
		},
		{
			name: "Two cards separated by blank line",
			input: `
Q: der Hund
A: the dog

Q: der Vogel
A: the bird
`,
			expectedCards: 2,
		},
		{
			name: "Two cards separated by ---",
			input: `Q: uno
A: one
---
Q: dos
A: two`,
			expectedCards: 2,
		},
		{
			name:          "No cards, just prose",
			input:         "This deck file has no entries yet.",
			expectedCards: 0,
		},
		{
			name:          "Prefixes with no space",
			input:         "Q:front\nA:back",
			expectedCards: 1,
			expectedFront: "front",
			expectedBack:  "back",
		},
		{
			name:          "Front without back is still a card",
			input:         "Q: orphan prompt",
			expectedCards: 1,
			expectedFront: "orphan prompt",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cards, err := Parse(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("Parse() returned an unexpected error: %v", err)
			}

			if len(cards) != tc.expectedCards {
				t.Fatalf("Expected %d cards, but got %d", tc.expectedCards, len(cards))
			}

			if tc.expectedCards == 1 {
				card := cards[0]
				if card.Front != tc.expectedFront {
					t.Errorf("Expected front '%s', but got '%s'", tc.expectedFront, card.Front)
				}
				if card.Back != tc.expectedBack {
					t.Errorf("Expected back '%s', but got '%s'", tc.expectedBack, card.Back)
				}
				if card.Example != tc.expectedEx {
					t.Errorf("Expected example '%s', but got '%s'", tc.expectedEx, card.Example)
				}
			}
		})
	}
}
