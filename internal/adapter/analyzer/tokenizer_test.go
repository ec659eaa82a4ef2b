package analyzer

import (
	"reflect"
	"testing"
)

func TestTokenizer_Tokenize_WithStemming(t *testing.T) {
	tok := NewTokenizer(true)

	tokens := tok.Tokenize("running dogs are playing")
	if len(tokens) != 3 {
		t.Errorf("expected 3 tokens, got %d: %v", len(tokens), tokens)
	}

	hasRun := false
	for _, token := range tokens {
		if token == "run" {
			hasRun = true
		}
	}
	if !hasRun {
		t.Errorf("expected 'running' to be stemmed to 'run', got %v", tokens)
	}
}

func TestTokenizer_Tokenize_WithoutStemming(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("running dogs are playing")
	if len(tokens) != 3 {
		t.Errorf("expected 3 tokens, got %d: %v", len(tokens), tokens)
	}

	hasRunning := false
	for _, token := range tokens {
		if token == "running" {
			hasRunning = true
		}
	}
	if !hasRunning {
		t.Errorf("expected 'running' to remain unstemmed, got %v", tokens)
	}
}

func TestTokenizer_Lowercases(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("Budget REVIEW Meeting")
	for _, token := range tokens {
		for _, r := range token {
			if r >= 'A' && r <= 'Z' {
				t.Errorf("expected lowercase tokens, got %v", tokens)
			}
		}
	}
}

func TestTokenizer_StopwordRemoval(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("the quick brown fox")
	for _, token := range tokens {
		if token == "the" {
			t.Errorf("stopword 'the' should be removed, got %v", tokens)
		}
	}
}

func TestTokenizer_ShortWordRemoval(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("a I go to")
	for _, token := range tokens {
		if len(token) < 2 {
			t.Errorf("short word should be removed: %s", token)
		}
	}
}

func TestTokenizer_PunctuationSplit(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("budget, review: meeting!")
	want := []string{"budget", "review", "meeting"}
	if !reflect.DeepEqual(tokens, want) {
		t.Errorf("expected %v, got %v", want, tokens)
	}
}

func TestTokenizer_EmptyInput(t *testing.T) {
	tok := NewTokenizer(true)

	if tokens := tok.Tokenize(""); len(tokens) != 0 {
		t.Errorf("expected no tokens for empty input, got %v", tokens)
	}
	if tokens := tok.Tokenize("   \n\t  "); len(tokens) != 0 {
		t.Errorf("expected no tokens for whitespace input, got %v", tokens)
	}
}

// Index-side and query-side text must pass through the same pipeline;
// otherwise stemmed postings can never match query terms.
func TestTokenizer_Deterministic(t *testing.T) {
	tok := NewTokenizer(true)

	text := "Authentication failures during the deployment were resolved"
	first := tok.Tokenize(text)
	for i := 0; i < 10; i++ {
		if got := tok.Tokenize(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("tokenization is not deterministic: %v vs %v", first, got)
		}
	}
}
