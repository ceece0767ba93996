// Package store provides storage backends for StudyPal.
//
// This file implements a PostgreSQL-backed store for deployments that
// share a database across instances.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/studypal/studypal/internal/models"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists StudyPal data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveConversationState stores or updates the state for its session id.
func (s *PostgresStore) SaveConversationState(state models.ConversationState) error {
	if state.SessionID == "" {
		return models.ErrEmptySessionID
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO conversation_states (session_id, user_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		state.SessionID, state.UserID, string(payload), state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversationState failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to save conversation state for %s: %w", state.SessionID, err)
	}
	return nil
}

// GetConversationState retrieves state by session id, nil when absent.
func (s *PostgresStore) GetConversationState(sessionID string) (*models.ConversationState, error) {
	var payload string
	err := s.db.QueryRow(`SELECT state FROM conversation_states WHERE session_id = $1`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationState query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query conversation state: %w", err)
	}
	var state models.ConversationState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	return &state, nil
}

// DeleteConversationState removes the state row for a session id.
func (s *PostgresStore) DeleteConversationState(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE session_id = $1`, sessionID)
	if err != nil {
		slog.Error("PostgresStore DeleteConversationState failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete conversation state for %s: %w", sessionID, err)
	}
	return nil
}

// SaveUserProfile stores or updates a user profile.
func (s *PostgresStore) SaveUserProfile(profile models.UserProfile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal user profile: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO user_profiles (user_id, profile, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			profile = EXCLUDED.profile,
			updated_at = EXCLUDED.updated_at`,
		profile.UserID, string(payload), profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveUserProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile for %s: %w", profile.UserID, err)
	}
	return nil
}

// GetUserProfile retrieves a profile, or models.ErrProfileNotFound.
func (s *PostgresStore) GetUserProfile(userID string) (*models.UserProfile, error) {
	var payload string
	err := s.db.QueryRow(`SELECT profile FROM user_profiles WHERE user_id = $1`, userID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, models.ErrProfileNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetUserProfile query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query user profile: %w", err)
	}
	var profile models.UserProfile
	if err := json.Unmarshal([]byte(payload), &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user profile: %w", err)
	}
	return &profile, nil
}

// AddQuote stores a persona quote.
func (s *PostgresStore) AddQuote(q models.Quote) error {
	_, err := s.db.Exec(`INSERT INTO quotes (persona, author, text) VALUES ($1, $2, $3)`, q.Persona, q.Author, q.Text)
	if err != nil {
		slog.Error("PostgresStore AddQuote failed", "error", err, "persona", q.Persona)
		return fmt.Errorf("failed to insert quote: %w", err)
	}
	return nil
}

// GetQuotes returns quotes for a persona (all quotes when persona is empty).
func (s *PostgresStore) GetQuotes(persona string) ([]models.Quote, error) {
	query := `SELECT persona, author, text FROM quotes`
	args := []interface{}{}
	if persona != "" {
		query += ` WHERE lower(persona) = lower($1)`
		args = append(args, persona)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore GetQuotes query failed", "error", err, "persona", persona)
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	var quotes []models.Quote
	for rows.Next() {
		var q models.Quote
		if err := rows.Scan(&q.Persona, &q.Author, &q.Text); err != nil {
			return nil, fmt.Errorf("failed to scan quote row: %w", err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quote rows: %w", err)
	}
	return quotes, nil
}

// AddSnippet stores a study-material snippet.
func (s *PostgresStore) AddSnippet(sn models.Snippet) error {
	_, err := s.db.Exec(`INSERT INTO snippets (source, content) VALUES ($1, $2)`, sn.Source, sn.Content)
	if err != nil {
		slog.Error("PostgresStore AddSnippet failed", "error", err, "source", sn.Source)
		return fmt.Errorf("failed to insert snippet: %w", err)
	}
	return nil
}

// SearchSnippets returns up to limit snippets whose content contains term.
func (s *PostgresStore) SearchSnippets(term string, limit int) ([]models.Snippet, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(`
		SELECT source, content FROM snippets
		WHERE content ILIKE '%' || $1 || '%'
		LIMIT $2`, term, limit)
	if err != nil {
		slog.Error("PostgresStore SearchSnippets query failed", "error", err, "term", term)
		return nil, fmt.Errorf("failed to query snippets: %w", err)
	}
	defer rows.Close()

	var snippets []models.Snippet
	for rows.Next() {
		var sn models.Snippet
		if err := rows.Scan(&sn.Source, &sn.Content); err != nil {
			return nil, fmt.Errorf("failed to scan snippet row: %w", err)
		}
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snippet rows: %w", err)
	}
	return snippets, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
