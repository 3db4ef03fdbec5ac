package game

import (
	"encoding/csv"
	"errors"
	"math/rand/v2"
	"os"
	"strings"
)

var defaultKeywords = []string{
	"cat", "dog", "house", "tree", "car", "sun", "flower", "bicycle",
	"rocket", "guitar", "umbrella", "castle", "robot", "pizza", "dragon",
	"lighthouse", "snowman", "elephant", "airplane", "butterfly", "volcano",
	"octopus", "cactus", "penguin", "treasure map", "hot air balloon",
	"giraffe", "submarine", "birthday cake", "windmill",
}

// Vocabulary is the fixed list of keywords a round can draw from.
type Vocabulary struct {
	words []string
}

func DefaultVocabulary() *Vocabulary {
	return NewVocabulary(defaultKeywords)
}

// NewVocabulary keeps the non-empty, de-duplicated words in order. An empty
// list falls back to the built-in keywords.
func NewVocabulary(words []string) *Vocabulary {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.TrimSpace(word)
		key := strings.ToLower(word)
		if word == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, word)
	}
	if len(out) == 0 {
		out = append(out, defaultKeywords...)
	}
	return &Vocabulary{words: out}
}

// LoadVocabulary reads keywords from a CSV file with a header row. The second
// column is used when present, otherwise the first.
func LoadVocabulary(path string) (*Vocabulary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var words []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		text := strings.TrimSpace(row[0])
		if len(row) >= 2 {
			text = strings.TrimSpace(row[1])
		}
		if text != "" {
			words = append(words, text)
		}
	}
	if len(words) == 0 {
		return nil, errors.New("keywords file has no entries")
	}
	return NewVocabulary(words), nil
}

func (v *Vocabulary) Pick() string {
	return v.words[rand.IntN(len(v.words))]
}

func (v *Vocabulary) Contains(word string) bool {
	for _, candidate := range v.words {
		if candidate == word {
			return true
		}
	}
	return false
}

func (v *Vocabulary) Words() []string {
	out := make([]string, len(v.words))
	copy(out, v.words)
	return out
}
