package retrieval

import (
	"context"
	"reflect"
	"testing"

	"github.com/studypal/studypal/internal/models"
	"github.com/studypal/studypal/internal/store"
)

func seededStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewInMemoryStore()
	snippets := []models.Snippet{
		{Source: "notes/derivatives.md", Content: "The derivative measures instantaneous rate of change."},
		{Source: "notes/chain-rule.md", Content: "The chain rule lets you differentiate composed functions. The derivative of f(g(x)) is f'(g(x))g'(x)."},
		{Source: "notes/photosynthesis.md", Content: "Photosynthesis converts light energy into chemical energy."},
	}
	for _, sn := range snippets {
		if err := s.AddSnippet(sn); err != nil {
			t.Fatalf("AddSnippet failed: %v", err)
		}
	}
	return s
}

func TestRetrieveMatchesContentWords(t *testing.T) {
	r := NewStoreRetriever(seededStore(t))

	got, err := r.Retrieve(context.Background(), "Can you explain the chain rule to me?")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected at least one snippet for 'chain rule'")
	}
	if got[0].Source != "notes/chain-rule.md" {
		t.Errorf("expected chain-rule snippet first, got %s", got[0].Source)
	}
}

func TestRetrieveDeduplicatesAcrossTerms(t *testing.T) {
	r := NewStoreRetriever(seededStore(t))

	// "derivative" matches both calculus snippets; "chain" matches one of
	// them again. The overlap must not repeat.
	got, err := r.Retrieve(context.Background(), "derivative chain rule")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	seen := make(map[string]int)
	for _, sn := range got {
		seen[sn.Source]++
	}
	for src, n := range seen {
		if n > 1 {
			t.Errorf("snippet %s returned %d times", src, n)
		}
	}
}

func TestRetrieveStopwordsOnlyQuery(t *testing.T) {
	r := NewStoreRetriever(seededStore(t))

	got, err := r.Retrieve(context.Background(), "what is it about?")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no snippets for a stopword-only query, got %d", len(got))
	}
}

func TestKeywords(t *testing.T) {
	got := keywords("What's the derivative of x^2, and why?")
	want := []string{"derivative"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("keywords mismatch: got %v, want %v", got, want)
	}
}
