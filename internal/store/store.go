// Package store provides storage backends for StudyPal.
//
// It includes an in-memory store for tests and persistent SQLite and
// PostgreSQL stores for conversation state, user profiles, persona quotes,
// and study-material snippets.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/studypal/studypal/internal/models"
)

// Opts holds configuration options for persistent stores.
type Opts struct {
	DSN string // database connection string (file path for SQLite)
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use a URL scheme or key=value connection strings; everything else is
// treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store defines the persistence operations used by the turn engine and its
// collaborators. GetConversationState returns nil (not an error) when no
// state exists for the session; GetUserProfile returns
// models.ErrProfileNotFound, which callers treat as recoverable.
type Store interface {
	SaveConversationState(state models.ConversationState) error
	GetConversationState(sessionID string) (*models.ConversationState, error)
	DeleteConversationState(sessionID string) error

	SaveUserProfile(profile models.UserProfile) error
	GetUserProfile(userID string) (*models.UserProfile, error)

	AddQuote(q models.Quote) error
	GetQuotes(persona string) ([]models.Quote, error)

	AddSnippet(s models.Snippet) error
	SearchSnippets(term string, limit int) ([]models.Snippet, error)

	Close() error
}

// InMemoryStore is a simple in-memory store used by tests and by the
// engine when no database is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	states   map[string]models.ConversationState
	profiles map[string]models.UserProfile
	quotes   []models.Quote
	snippets []models.Snippet
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states:   make(map[string]models.ConversationState),
		profiles: make(map[string]models.UserProfile),
	}
}

// SaveConversationState stores or replaces the state for its session id.
func (s *InMemoryStore) SaveConversationState(state models.ConversationState) error {
	if state.SessionID == "" {
		return models.ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SessionID] = state
	return nil
}

// GetConversationState retrieves state by session id, nil when absent.
func (s *InMemoryStore) GetConversationState(sessionID string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[sessionID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// DeleteConversationState removes the state for a session id.
func (s *InMemoryStore) DeleteConversationState(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}

// SaveUserProfile stores or replaces a user profile.
func (s *InMemoryStore) SaveUserProfile(profile models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

// GetUserProfile retrieves a profile or models.ErrProfileNotFound.
func (s *InMemoryStore) GetUserProfile(userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, models.ErrProfileNotFound
	}
	return &profile, nil
}

// AddQuote stores a persona quote.
func (s *InMemoryStore) AddQuote(q models.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, q)
	return nil
}

// GetQuotes returns quotes for a persona (all quotes when persona is empty).
func (s *InMemoryStore) GetQuotes(persona string) ([]models.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Quote
	for _, q := range s.quotes {
		if persona == "" || strings.EqualFold(q.Persona, persona) {
			out = append(out, q)
		}
	}
	return out, nil
}

// AddSnippet stores a study-material snippet.
func (s *InMemoryStore) AddSnippet(sn models.Snippet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snippets = append(s.snippets, sn)
	return nil
}

// SearchSnippets returns up to limit snippets containing term,
// longest-match-first so denser snippets surface earlier.
func (s *InMemoryStore) SearchSnippets(term string, limit int) ([]models.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lowered := strings.ToLower(term)
	var out []models.Snippet
	for _, sn := range s.snippets {
		if strings.Contains(strings.ToLower(sn.Content), lowered) {
			out = append(out, sn)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.Count(strings.ToLower(out[i].Content), lowered) >
			strings.Count(strings.ToLower(out[j].Content), lowered)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
