package deck

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/recall/internal/domain"
)

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	examplePrefix = "E:"
)

type state int

const (
	seeking state = iota
	readingFront
	readingBack
	readingExample
)

// ParseFile reads a deck file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards. A card is a
// Q: block followed by optional A: and E: blocks; "---" or the next
// Q: starts a new card. Blocks may span multiple lines.
func Parse(r io.Reader) ([]domain.Card, error) {
	scanner := bufio.NewScanner(r)
	var cards []domain.Card
	var current domain.Card
	var block []string
	cur := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.Join(block, "\n")
		switch cur {
		case readingFront:
			current.Front = content
		case readingBack:
			current.Back = content
		case readingExample:
			current.Example = content
		}
		block = nil
	}

	finishCard := func() {
		flushBlock()
		if current.Front != "" {
			cards = append(cards, current)
		}
		current = domain.Card{}
		cur = seeking
	}

	startBlock := func(next state, line, prefix string) {
		flushBlock()
		cur = next
		content := strings.TrimPrefix(line, prefix)
		content = strings.TrimPrefix(content, " ")
		block = append(block, content)
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "---":
			finishCard()
		case strings.HasPrefix(line, frontPrefix):
			if cur != seeking { // a new front always starts a new card
				finishCard()
			}
			startBlock(readingFront, line, frontPrefix)
		case strings.HasPrefix(line, backPrefix):
			startBlock(readingBack, line, backPrefix)
		case strings.HasPrefix(line, examplePrefix):
			startBlock(readingExample, line, examplePrefix)
		default:
			if cur != seeking {
				block = append(block, line)
			}
		}
	}

	finishCard() // the last card in the file has no trailing separator

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return cards, nil
}
