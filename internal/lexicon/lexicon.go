// Package lexicon holds the fixed query vocabulary used by lexical search:
// a stopword list and a table of domain synonym groups. The data is loaded
// once at startup and never mutated afterwards.
package lexicon

import (
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Lexicon struct {
	Stopwords []string   `yaml:"stopwords"`
	Synonyms  [][]string `yaml:"synonyms"`

	stopset  map[string]struct{}
	synonyms map[string][]string
}

// Load reads a lexicon from path. A missing file yields the built-in
// defaults; a present but invalid file is an error.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, err
	}
	lex.compile()
	return &lex, nil
}

// Default returns the compiled-in vocabulary.
func Default() *Lexicon {
	lex := &Lexicon{
		Stopwords: []string{
			"a", "an", "the", "is", "are", "was", "were", "be", "been",
			"being", "in", "on", "at", "of", "for", "to", "from", "by",
			"with", "about", "into", "over", "under", "what", "which",
			"who", "whom", "this", "that", "these", "those", "it", "its",
			"as", "do", "does", "did", "how", "when", "where", "why",
			"can", "could", "should", "would", "will", "may", "might",
			"and", "or", "but", "not", "no", "if", "then", "than", "so",
			"such", "there", "here", "please", "tell", "me", "us", "we",
			"you", "your", "our", "they", "their", "i", "my",
		},
		Synonyms: [][]string{
			{"requirements", "expected", "compliance", "evidence", "indicators"},
			{"must", "shall", "required", "mandatory", "obligatory"},
			{"vendor", "supplier", "contractor"},
			{"submit", "provide", "deliver", "supply"},
			{"annual", "annually", "yearly"},
			{"policy", "procedure", "process"},
			{"audit", "review", "assessment", "inspection"},
			{"document", "documentation", "record", "records"},
		},
	}
	lex.compile()
	return lex
}

func (l *Lexicon) compile() {
	l.stopset = make(map[string]struct{}, len(l.Stopwords))
	for _, w := range l.Stopwords {
		l.stopset[strings.ToLower(w)] = struct{}{}
	}
	l.synonyms = make(map[string][]string)
	for _, group := range l.Synonyms {
		for _, term := range group {
			key := strings.ToLower(term)
			for _, other := range group {
				variant := strings.ToLower(other)
				if variant == key {
					continue
				}
				l.synonyms[key] = append(l.synonyms[key], variant)
			}
		}
	}
}

// IsStopword reports whether term carries no search value.
func (l *Lexicon) IsStopword(term string) bool {
	_, ok := l.stopset[strings.ToLower(term)]
	return ok
}

// Expand returns term followed by every synonym in its group. Terms without
// a group come back alone.
func (l *Lexicon) Expand(term string) []string {
	key := strings.ToLower(term)
	variants, ok := l.synonyms[key]
	if !ok {
		return []string{key}
	}
	out := make([]string, 0, len(variants)+1)
	out = append(out, key)
	out = append(out, variants...)
	return out
}
