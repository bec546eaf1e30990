package lexicon

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDefaultStopwords(t *testing.T) {
	lex := Default()
	for _, word := range []string{"the", "what", "is", "please"} {
		if !lex.IsStopword(word) {
			t.Fatalf("expected %q to be a stopword", word)
		}
	}
	if lex.IsStopword("vendor") {
		t.Fatalf("expected domain terms kept")
	}
}

func TestExpandSynonymGroup(t *testing.T) {
	lex := Default()

	variants := lex.Expand("requirements")
	if len(variants) != 5 {
		t.Fatalf("expected full synonym group, got %v", variants)
	}
	if variants[0] != "requirements" {
		t.Fatalf("expected the original term first, got %v", variants)
	}
}

func TestExpandUnknownTerm(t *testing.T) {
	lex := Default()

	variants := lex.Expand("Widget")
	if !reflect.DeepEqual(variants, []string{"widget"}) {
		t.Fatalf("expected lowercased term alone, got %v", variants)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	lex, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !lex.IsStopword("the") {
		t.Fatalf("expected default stopwords")
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	content := "stopwords:\n  - foo\n  - bar\nsynonyms:\n  - [alpha, beta]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	lex, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !lex.IsStopword("foo") || lex.IsStopword("the") {
		t.Fatalf("expected file stopwords to replace defaults")
	}
	if !reflect.DeepEqual(lex.Expand("alpha"), []string{"alpha", "beta"}) {
		t.Fatalf("expected file synonyms compiled, got %v", lex.Expand("alpha"))
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("stopwords: [unclosed"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid yaml")
	}
}
