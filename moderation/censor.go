// Package moderation masks configured words in message bodies before
// they are persisted or routed.
package moderation

import (
	"bufio"
	"os"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Censor matches a fixed word list case-insensitively with an
// Aho-Corasick automaton and masks every hit.
type Censor struct {
	machine *goahocorasick.Machine
	mask    rune
}

// NewCensor builds the automaton from words. Matching is done on
// lowercased runes; lowercase mapping is applied rune by rune so match
// offsets line up with the original text.
func NewCensor(words []string, mask rune) (*Censor, error) {
	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		patterns = append(patterns, lowerRunes([]rune(w)))
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{machine: m, mask: mask}, nil
}

// Apply returns body with every configured word replaced by the mask
// rune. A nil censor passes the body through.
func (c *Censor) Apply(body string) string {
	if c == nil {
		return body
	}

	original := []rune(body)
	hits := c.machine.MultiPatternSearch(lowerRunes(original), false)
	if len(hits) == 0 {
		return body
	}

	for _, hit := range hits {
		end := hit.Pos + len(hit.Word)
		if hit.Pos < 0 || end > len(original) {
			continue
		}
		for i := hit.Pos; i < end; i++ {
			original[i] = c.mask
		}
	}
	return string(original)
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// LoadWordList reads one word per line, skipping blanks and comments.
func LoadWordList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}
