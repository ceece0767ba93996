// Package retrieval surfaces study-material snippets for the tutoring handler.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studypal/studypal/internal/models"
	"github.com/studypal/studypal/internal/store"
)

// DefaultSnippetLimit caps how many snippets a single lookup returns.
const DefaultSnippetLimit = 3

// Retriever finds study material relevant to a user question. Implementations
// return an empty slice (not an error) when nothing matches; the tutor treats
// missing context as recoverable.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]models.Snippet, error)
}

// StoreRetriever is a keyword retriever backed by the snippet store.
type StoreRetriever struct {
	store store.Store
	limit int
}

// NewStoreRetriever creates a retriever over the given store.
func NewStoreRetriever(s store.Store) *StoreRetriever {
	return &StoreRetriever{store: s, limit: DefaultSnippetLimit}
}

// stopwords excluded from keyword extraction. Question scaffolding carries no
// retrieval signal.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"what": true, "whats": true, "how": true, "why": true, "who": true,
	"when": true, "where": true, "which": true, "do": true, "does": true,
	"did": true, "can": true, "could": true, "me": true, "my": true,
	"i": true, "you": true, "to": true, "of": true, "in": true, "on": true,
	"for": true, "and": true, "or": true, "it": true, "this": true,
	"that": true, "about": true, "please": true, "explain": true,
	"tell": true, "help": true, "with": true, "understand": true,
}

// Retrieve extracts content words from the query and returns the snippets
// that match the most of them, deduplicated by source.
func (r *StoreRetriever) Retrieve(ctx context.Context, query string) ([]models.Snippet, error) {
	terms := keywords(query)
	slog.Debug("StoreRetriever.Retrieve invoked", "query_len", len(query), "terms", terms)
	if len(terms) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var out []models.Snippet
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snippets, err := r.store.SearchSnippets(term, r.limit)
		if err != nil {
			slog.Error("StoreRetriever.Retrieve search failed", "error", err, "term", term)
			return nil, fmt.Errorf("failed to search snippets for %q: %w", term, err)
		}
		for _, sn := range snippets {
			key := sn.Source + "\x00" + sn.Content
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, sn)
			if len(out) >= r.limit {
				slog.Debug("StoreRetriever.Retrieve hit limit", "count", len(out))
				return out, nil
			}
		}
	}
	slog.Debug("StoreRetriever.Retrieve succeeded", "count", len(out))
	return out, nil
}

// keywords lowercases the query, strips punctuation, and drops stopwords and
// short tokens.
func keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var terms []string
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
